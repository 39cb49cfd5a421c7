package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vfs-go/internal/output"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME [PATH...]",
	Short: "Create a project scoped to the given paths (default /)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		resources := args[1:]
		if len(resources) == 0 {
			resources = []string{"/"}
		}

		a, err := newApp("project create")
		if err != nil {
			return err
		}
		defer closeApp(a)

		p, err := a.CreateProject(args[0], desc, resources)
		if err != nil {
			return err
		}
		fmt.Printf("Created project %d %s\n", p.ID, p.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("project list")
		if err != nil {
			return err
		}
		defer closeApp(a)

		projects, err := a.ListProjects()
		if err != nil {
			return err
		}
		return output.PrintProjects(os.Stdout, projects, a.CurrentProject().ID)
	},
}

var projectSwitchCmd = &cobra.Command{
	Use:   "switch ID",
	Short: "Make a project current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}

		a, err := newApp("project switch")
		if err != nil {
			return err
		}
		defer closeApp(a)

		p, err := a.SwitchProject(id)
		if err != nil {
			return err
		}
		fmt.Printf("Now working in project %d %s\n", p.ID, p.Name)
		return nil
	},
}

var projectViewCmd = &cobra.Command{
	Use:   "view [ID]",
	Short: "Show the modified resources of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		flat, _ := cmd.Flags().GetBool("flat")
		id := 0
		if len(args) > 0 {
			var err error
			if id, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
		}

		a, err := newApp("project view")
		if err != nil {
			return err
		}
		defer closeApp(a)

		resources, err := a.ProjectView(id, filter)
		if err != nil {
			return err
		}
		if flat {
			for _, r := range resources {
				fmt.Printf("%s %s\n", output.StateMarker(r.State), r.Name)
			}
			return nil
		}

		label := a.CurrentProject().Name
		if id != 0 {
			label = fmt.Sprintf("project %d", id)
		}
		tree := output.NewProjectTree(label)
		tree.AddAll(resources)
		fmt.Print(tree.Render())
		return nil
	},
}

func projectIDCommand(use, short string, run func(cmd *cobra.Command, id int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			return run(cmd, id)
		},
	}
}

var projectArchiveCmd = projectIDCommand("archive", "Archive a project", func(cmd *cobra.Command, id int) error {
	a, err := newApp("project archive")
	if err != nil {
		return err
	}
	defer closeApp(a)
	return a.ArchiveProject(id)
})

var projectDeleteCmd = projectIDCommand("delete", "Delete a project without locks", func(cmd *cobra.Command, id int) error {
	a, err := newApp("project delete")
	if err != nil {
		return err
	}
	defer closeApp(a)
	return a.DeleteProject(id)
})

var projectUnlockCmd = projectIDCommand("unlock", "Release every lock in a project", func(cmd *cobra.Command, id int) error {
	a, err := newApp("project unlock")
	if err != nil {
		return err
	}
	defer closeApp(a)

	n, err := a.UnlockProject(id)
	if err != nil {
		return err
	}
	fmt.Printf("Released %d lock(s)\n", n)
	return nil
})

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and groups",
}

var userCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		groups, _ := cmd.Flags().GetStringSlice("groups")

		a, err := newApp("user create")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.CreateUser(args[0], admin, groups...); err != nil {
			return err
		}
		fmt.Printf("Created user %s in %s\n", args[0], strings.Join(groups, ", "))
		return nil
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "group ID NAME",
	Short: "Create a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("group create")
		if err != nil {
			return err
		}
		defer closeApp(a)
		return a.CreateGroup(args[0], args[1])
	},
}

func init() {
	projectCreateCmd.Flags().StringP("description", "d", "", "Project description")
	projectViewCmd.Flags().StringP("filter", "f", "all", "all, new, changed, deleted or locked")
	projectViewCmd.Flags().Bool("flat", false, "Print paths instead of a tree")
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectSwitchCmd, projectViewCmd,
		projectArchiveCmd, projectDeleteCmd, projectUnlockCmd)

	userCreateCmd.Flags().Bool("admin", false, "Grant administrator rights")
	userCreateCmd.Flags().StringSlice("groups", []string{"users"}, "Group ids")
	userCmd.AddCommand(userCreateCmd, groupCreateCmd)

	rootCmd.AddCommand(projectCmd, userCmd)
}
