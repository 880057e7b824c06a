package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/board"
)

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Manage boards",
	}
	cmd.AddCommand(boardCreateCmd())
	cmd.AddCommand(boardListCmd())
	cmd.AddCommand(boardShowCmd())
	cmd.AddCommand(boardImportCmd())
	cmd.AddCommand(boardWIPCmd())
	return cmd
}

func boardCreateCmd() *cobra.Command {
	var aiOptimized bool
	var doingWIP int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			boards, _ := newService(storeDB, cfg)

			var def board.Definition
			if aiOptimized {
				wip := doingWIP
				if wip <= 0 {
					wip = cfg.Boards.DoingWIPLimit
				}
				def, err = board.AITemplate(wip)
				if err != nil {
					return err
				}
			} else {
				def = board.Definition{Columns: []board.ColumnDefinition{
					{Name: "To Do", Phase: board.PhaseBacklog},
					{Name: "In Progress", Phase: board.PhaseDoing},
					{Name: "Done", Phase: board.PhaseDone},
				}}
			}
			b, err := boards.Create(cmd.Context(), args[0], def)
			if err != nil {
				return err
			}
			log.Info().Msgf("board %d (%s) created", b.ID, b.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&aiOptimized, "ai", false, "use the claim/review column layout")
	cmd.Flags().IntVar(&doingWIP, "doing-wip", 0, "override the Doing column WIP limit")
	return cmd
}

func boardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			boards, _ := newService(storeDB, cfg)

			items, err := boards.Boards(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("no boards")
				return nil
			}
			for _, b := range items {
				marker := ""
				if b.AIOptimized {
					marker = " [ai]"
				}
				fmt.Printf("%d\t%s%s\n", b.ID, b.Name, marker)
			}
			return nil
		},
	}
}

func boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show a board's columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := parseID(args[0])
			if err != nil {
				return err
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			boards, service := newService(storeDB, cfg)

			b, err := boards.Board(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			columns, err := boards.Columns(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			fmt.Printf("%s (board %d)\n", b.Name, b.ID)
			for _, col := range columns {
				tasks, err := service.ColumnTasks(cmd.Context(), col.ID)
				if err != nil {
					return err
				}
				limit := ""
				if col.WIPLimit > 0 {
					limit = fmt.Sprintf(" (wip %d)", col.WIPLimit)
				}
				fmt.Printf("\n%s%s\n", col.Name, limit)
				for _, t := range tasks {
					assignee := ""
					if t.AssignedToID != "" {
						assignee = " @" + t.AssignedToID
					}
					fmt.Printf("  %d. %s [%s] %s%s\n", t.Position, t.Identifier, t.Status, t.Title, assignee)
				}
			}
			return nil
		},
	}
}

func boardImportCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <definition.yaml>",
		Short: "Create a board from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := board.LoadDefinition(data)
			if err != nil {
				return err
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			boards, _ := newService(storeDB, cfg)

			b, err := boards.Create(cmd.Context(), name, def)
			if err != nil {
				return err
			}
			log.Info().Msgf("board %d (%s) created from %s", b.ID, b.Name, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "board name (defaults to the definition's)")
	return cmd
}

func boardWIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wip <column-id> <limit>",
		Short: "Set a column's WIP limit (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			columnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			limit, err := parseInt(args[1])
			if err != nil {
				return err
			}
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			boards, _ := newService(storeDB, cfg)

			if err := boards.SetWIPLimit(cmd.Context(), columnID, limit); err != nil {
				return err
			}
			log.Info().Msgf("column %d wip limit set to %d", columnID, limit)
			return nil
		},
	}
}
