package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"vfs-go/internal/output"
)

var createCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create a file or folder (folders end with /)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		file, _ := cmd.Flags().GetString("file")
		inline, _ := cmd.Flags().GetString("content")
		propPairs, _ := cmd.Flags().GetStringArray("prop")

		props, err := parseProps(propPairs)
		if err != nil {
			return err
		}
		var content []byte
		if typeName != "folder" {
			if content, err = readContent(file, inline); err != nil {
				return err
			}
		}

		a, err := newApp("create")
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.CreateResource(args[0], typeName, content, props)
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		fmt.Printf("%s %s\n", output.StateMarker(res.State), res.Name)
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write PATH",
	Short: "Replace the content of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		inline, _ := cmd.Flags().GetString("content")
		content, err := readContent(file, inline)
		if err != nil {
			return err
		}

		a, err := newApp("write")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.WriteContent(args[0], content)
	},
}

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Print the content of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		online, _ := cmd.Flags().GetBool("online")

		a, err := newApp("cat")
		if err != nil {
			return err
		}
		defer closeApp(a)

		var content []byte
		if online {
			content, err = a.ReadOnline(args[0])
		} else {
			res, rerr := a.ReadResource(args[0])
			if rerr == nil {
				content = res.Content
			}
			err = rerr
		}
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(content)
		return err
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a folder of the current project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		path := "/"
		if len(args) > 0 {
			path = args[0]
		}

		a, err := newApp("ls")
		if err != nil {
			return err
		}
		defer closeApp(a)

		children, err := a.ReadChildren(path, all)
		if err != nil {
			return err
		}
		for _, r := range children {
			fmt.Printf("%s %-8d %s  %s\n", output.StateMarker(r.State), r.Size,
				r.EffectiveLastModified().Local().Format(time.DateTime), r.BaseName())
		}
		return nil
	},
}

var propCmd = &cobra.Command{
	Use:   "prop PATH [KEY=VALUE]",
	Short: "Show or set properties (an empty value removes the key)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("prop")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if len(args) == 2 {
			props, err := parseProps(args[1:])
			if err != nil {
				return err
			}
			for k, v := range props {
				if err := a.WriteProperty(args[0], k, v); err != nil {
					return err
				}
			}
			return nil
		}

		props, err := a.ReadProperties(args[0])
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, props[k])
		}
		return nil
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch PATH",
	Short: "Set the last-modified date of a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		ts := time.Now()
		if at != "" {
			var err error
			if ts, err = time.ParseInLocation(time.DateTime, at, time.Local); err != nil {
				return fmt.Errorf("parsing --at: %w", err)
			}
		}

		a, err := newApp("touch")
		if err != nil {
			return err
		}
		defer closeApp(a)

		return a.Touch(args[0], ts)
	},
}

// pathCommand builds a command that applies one app operation to PATH.
func pathCommand(use, short string, run func(a appOps, path string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " PATH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(use)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return run(a, args[0])
		},
	}
}

// twoPathCommand builds a command taking SOURCE and DESTINATION.
func twoPathCommand(use, short string, run func(a appOps, from, to string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SOURCE DESTINATION",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(use)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return run(a, args[0], args[1])
		},
	}
}

// appOps is the subset of *app.VFSApp used by the generic path commands.
type appOps interface {
	DeleteResource(path string) error
	UndeleteResource(path string) error
	UndoChanges(path string) error
	UnlockResource(path string) error
	ChangeLock(path string) error
	CopyResource(source, destination string) error
	MoveResource(source, destination string) error
	CreateSibling(source, path string) error
	AttachBody(pagePath, bodyPath string) error
}

var lockCmd = &cobra.Command{
	Use:   "lock PATH",
	Short: "Lock a resource for editing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("lock")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.LockResource(args[0], force); err != nil {
			return err
		}
		l, err := a.LockedBy(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("locked by %s in project %d (%s)\n", l.UserID, l.ProjectID, l.Mode)
		return nil
	},
}

var linksCmd = &cobra.Command{
	Use:   "links PATH [TARGET...]",
	Short: "Show or replace the outgoing links of a resource",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearAll, _ := cmd.Flags().GetBool("clear")

		a, err := newApp("links")
		if err != nil {
			return err
		}
		defer closeApp(a)

		if len(args) > 1 || clearAll {
			return a.SetLinks(args[0], args[1:])
		}
		links, err := a.ReadLinks(args[0])
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Println(l)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import DIR [TARGET]",
	Short: "Import a local directory into the current project",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "/"
		if len(args) > 1 {
			target = args[1]
		}

		a, err := newApp("import")
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.Import(args[0], target)
		if err != nil {
			return err
		}
		fmt.Printf("Created %d, skipped %d existing, ignored %d\n",
			len(result.Created), len(result.Skipped), len(result.Ignored))
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("type", "t", "plain", "Resource type name")
	createCmd.Flags().StringP("file", "f", "", "Read content from a local file (- for stdin)")
	createCmd.Flags().StringP("content", "c", "", "Inline content")
	createCmd.Flags().StringArrayP("prop", "p", nil, "Property KEY=VALUE (repeatable)")
	writeCmd.Flags().StringP("file", "f", "-", "Read content from a local file (- for stdin)")
	writeCmd.Flags().StringP("content", "c", "", "Inline content")
	catCmd.Flags().Bool("online", false, "Read the published version")
	lsCmd.Flags().BoolP("all", "a", false, "Include deleted resources")
	touchCmd.Flags().String("at", "", "Timestamp as \"2006-01-02 15:04:05\" (default now)")
	lockCmd.Flags().Bool("force", false, "Steal a lock held by another user")
	linksCmd.Flags().Bool("clear", false, "Remove all outgoing links")

	rootCmd.AddCommand(createCmd, writeCmd, catCmd, lsCmd, propCmd, touchCmd, lockCmd, linksCmd, importCmd)
	rootCmd.AddCommand(
		pathCommand("delete", "Mark a resource deleted", func(a appOps, p string) error { return a.DeleteResource(p) }),
		pathCommand("undelete", "Revive a deleted resource", func(a appOps, p string) error { return a.UndeleteResource(p) }),
		pathCommand("undo", "Discard offline changes", func(a appOps, p string) error { return a.UndoChanges(p) }),
		pathCommand("unlock", "Release a lock", func(a appOps, p string) error { return a.UnlockResource(p) }),
		pathCommand("steal", "Take over another user's lock", func(a appOps, p string) error { return a.ChangeLock(p) }),
		twoPathCommand("copy", "Copy a resource", func(a appOps, from, to string) error { return a.CopyResource(from, to) }),
		twoPathCommand("move", "Move or rename a resource", func(a appOps, from, to string) error { return a.MoveResource(from, to) }),
		twoPathCommand("sibling", "Add a second path for existing content", func(a appOps, from, to string) error { return a.CreateSibling(from, to) }),
		twoPathCommand("attach-body", "Pair a page with its body", func(a appOps, page, body string) error { return a.AttachBody(page, body) }),
	)
}
