package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/task"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent claim protocol commands",
	}
	cmd.AddCommand(agentNextCmd())
	cmd.AddCommand(agentClaimCmd())
	cmd.AddCommand(agentUnclaimCmd())
	cmd.AddCommand(agentCompleteCmd())
	cmd.AddCommand(agentReviewCmd())
	return cmd
}

func agentNextCmd() *cobra.Command {
	var (
		boardID int64
		caps    []string
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Preview the next claimable task without claiming it",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, ok, err := service.NextEligible(cmd.Context(), boardID, caps)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("no eligible tasks")
				return nil
			}
			fmt.Printf("%s\t%s\n", t.Identifier, t.Title)
			return nil
		},
	}
	cmd.Flags().Int64Var(&boardID, "board", 0, "board id")
	cmd.Flags().StringArrayVar(&caps, "cap", nil, "agent capability (repeatable)")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func agentClaimCmd() *cobra.Command {
	var (
		boardID    int64
		agent      string
		caps       []string
		identifier string
	)
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the next eligible task (or a specific one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			result, err := service.Claim(cmd.Context(), task.ClaimRequest{
				BoardID:      boardID,
				Agent:        agent,
				Capabilities: caps,
				Identifier:   identifier,
			})
			if err != nil {
				return err
			}
			log.Info().Msgf("claimed %s (%s), lease expires %s",
				result.Task.Identifier, result.Task.Title, result.Task.ClaimExpiresAt)
			for k, v := range result.Hook.Env {
				fmt.Printf("%s=%s\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&boardID, "board", 0, "board id")
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().StringArrayVar(&caps, "cap", nil, "agent capability (repeatable)")
	cmd.Flags().StringVar(&identifier, "task", "", "claim this specific task")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func agentUnclaimCmd() *cobra.Command {
	var (
		agent  string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "unclaim <identifier>",
		Short: "Release a claimed task back to the ready column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Unclaim(cmd.Context(), args[0], agent, reason)
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s released", t.Identifier)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is being released")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func agentCompleteCmd() *cobra.Command {
	var (
		agent   string
		summary string
		files   []string
	)
	cmd := &cobra.Command{
		Use:   "complete <identifier>",
		Short: "Complete a claimed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			result, err := service.Complete(cmd.Context(), args[0], agent, task.CompletionPayload{
				Summary:      summary,
				FilesChanged: files,
			})
			if err != nil {
				return err
			}
			if result.Task.Status == task.StatusCompleted {
				log.Info().Msgf("task %s completed", result.Task.Identifier)
			} else {
				log.Info().Msgf("task %s sent to review", result.Task.Identifier)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().StringVar(&summary, "summary", "", "completion summary")
	cmd.Flags().StringArrayVar(&files, "file", nil, "changed file path (repeatable)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func agentReviewCmd() *cobra.Command {
	var (
		reviewer string
		verdict  string
	)
	cmd := &cobra.Command{
		Use:   "review <identifier>",
		Short: "Record a review verdict and resolve the review",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			identifier := args[0]
			if verdict != "" {
				if _, err := service.SetReviewStatus(cmd.Context(), identifier, task.ReviewStatus(verdict), reviewer); err != nil {
					return err
				}
			}
			result, err := service.MarkReviewed(cmd.Context(), identifier, reviewer)
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s review resolved: %s", result.Task.Identifier, result.Task.ReviewStatus)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer id")
	cmd.Flags().StringVar(&verdict, "verdict", "", "approved, changes_requested or rejected")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}
