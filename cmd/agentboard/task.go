package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/task"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskMoveCmd())
	cmd.AddCommand(taskReorderCmd())
	cmd.AddCommand(taskArchiveCmd())
	cmd.AddCommand(taskUnarchiveCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskDepsCmd())
	cmd.AddCommand(taskHistoryCmd())
	cmd.AddCommand(goalCreateCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var (
		columnID    int64
		taskType    string
		priority    int
		parent      string
		deps        []string
		caps        []string
		keyFiles    []string
		needsReview bool
		description string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task to a column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return fmt.Errorf("title is required")
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.CreateTask(cmd.Context(), task.CreateTaskParams{
				ColumnID:             columnID,
				Type:                 task.Type(taskType),
				Title:                title,
				Description:          description,
				Priority:             priority,
				ParentIdentifier:     parent,
				Dependencies:         deps,
				RequiredCapabilities: caps,
				KeyFiles:             keyFiles,
				NeedsReview:          needsReview,
			})
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s added to column %d at position %d", t.Identifier, t.ColumnID, t.Position)
			return nil
		},
	}
	cmd.Flags().Int64Var(&columnID, "column", 0, "destination column id")
	cmd.Flags().StringVar(&taskType, "type", string(task.TypeWork), "task type: work, defect or goal")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (higher claims first)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent goal identifier")
	cmd.Flags().StringArrayVar(&deps, "dep", nil, "dependency identifier (repeatable)")
	cmd.Flags().StringArrayVar(&caps, "cap", nil, "required capability (repeatable)")
	cmd.Flags().StringArrayVar(&keyFiles, "file", nil, "key file path (repeatable)")
	cmd.Flags().BoolVar(&needsReview, "needs-review", false, "route through review before completion")
	cmd.Flags().StringVar(&description, "desc", "", "task description")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func taskListCmd() *cobra.Command {
	var boardID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a board's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			items, err := service.BoardTasks(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("no tasks")
				return nil
			}
			for _, t := range items {
				fmt.Printf("%s\t%s\t%s\t%s\n", t.Identifier, t.Type, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&boardID, "board", 0, "board id")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <identifier>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s [%s] %s\n", t.Identifier, t.Status, t.Title)
			if t.Description != "" {
				fmt.Printf("  %s\n", t.Description)
			}
			fmt.Printf("  type=%s column=%d position=%d priority=%d\n", t.Type, t.ColumnID, t.Position, t.Priority)
			if len(t.Dependencies) > 0 {
				fmt.Printf("  depends on: %s\n", strings.Join(t.Dependencies, ", "))
			}
			if len(t.RequiredCapabilities) > 0 {
				fmt.Printf("  capabilities: %s\n", strings.Join(t.RequiredCapabilities, ", "))
			}
			if t.AssignedToID != "" {
				fmt.Printf("  assigned to %s (lease expires %s)\n", t.AssignedToID, t.ClaimExpiresAt)
			}
			if t.NeedsReview {
				fmt.Printf("  review: %s\n", t.ReviewStatus)
			}
			return nil
		},
	}
}

func taskMoveCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <identifier> <column-id>",
		Short: "Move a task to a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			columnID, err := parseID(args[1])
			if err != nil {
				return err
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Move(cmd.Context(), args[0], columnID, index)
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s moved to column %d position %d", t.Identifier, t.ColumnID, t.Position)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "insertion index (-1 prepends, past-end appends)")
	return cmd
}

func taskReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <column-id> <task-id>...",
		Short: "Rewrite a column's full ordering",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			columnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			if err := service.Reorder(cmd.Context(), columnID, ids); err != nil {
				return err
			}
			log.Info().Msgf("column %d reordered", columnID)
			return nil
		},
	}
}

func taskArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <identifier>",
		Short: "Archive a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Archive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s archived", t.Identifier)
			return nil
		},
	}
}

func taskUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <identifier>",
		Short: "Restore an archived task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Unarchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s restored at position %d", t.Identifier, t.Position)
			return nil
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identifier>",
		Short: "Delete a task permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().Msgf("task %s deleted", t.Identifier)
			return nil
		},
	}
}

func taskDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <identifier>",
		Short: "Show a task's dependencies and dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			t, err := service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(t.Dependencies) == 0 {
				fmt.Println("depends on: nothing")
			} else {
				fmt.Println("depends on:")
				for _, dep := range t.Dependencies {
					status := "missing"
					if d, err := service.Get(cmd.Context(), dep); err == nil {
						status = string(d.Status)
					}
					fmt.Printf("  %s\t%s\n", dep, status)
				}
			}
			dependents, err := service.Dependents(cmd.Context(), t.Identifier)
			if err != nil {
				return err
			}
			if len(dependents) == 0 {
				fmt.Println("depended on by: nothing")
				return nil
			}
			fmt.Println("depended on by:")
			for _, d := range dependents {
				fmt.Printf("  %s\t%s\t%s\n", d.Identifier, d.Status, d.Title)
			}
			return nil
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <identifier>",
		Short: "Show a task's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			entries, err := service.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range entries {
				actor := e.Actor
				if actor == "" {
					actor = "-"
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", e.CreatedAt, e.Event, actor, e.Detail)
			}
			return nil
		},
	}
}

func goalCreateCmd() *cobra.Command {
	var (
		columnID    int64
		description string
		childSpecs  []string
	)

	cmd := &cobra.Command{
		Use:   "goal <title>",
		Short: "Create a goal, optionally with children",
		Long: `Create a goal task. Children are given as repeatable --child flags of the
form "type:title"; child dependencies can reference earlier children by their
0-based index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			children := make([]task.ChildParams, 0, len(childSpecs))
			for _, spec := range childSpecs {
				typ, childTitle, ok := strings.Cut(spec, ":")
				if !ok || childTitle == "" {
					return fmt.Errorf("child %q must be type:title", spec)
				}
				children = append(children, task.ChildParams{
					Type:  task.Type(typ),
					Title: childTitle,
				})
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			_, service := newService(storeDB, cfg)

			goal, created, err := service.CreateGoal(cmd.Context(), task.CreateGoalParams{
				ColumnID:    columnID,
				Title:       title,
				Description: description,
				Children:    children,
			})
			if err != nil {
				return err
			}
			log.Info().Msgf("goal %s created with %d children", goal.Identifier, len(created))
			for _, child := range created {
				fmt.Printf("  %s\t%s\n", child.Identifier, child.Title)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&columnID, "column", 0, "destination column id")
	cmd.Flags().StringVar(&description, "desc", "", "goal description")
	cmd.Flags().StringArrayVar(&childSpecs, "child", nil, `child task as "type:title" (repeatable)`)
	_ = cmd.MarkFlagRequired("column")
	return cmd
}
