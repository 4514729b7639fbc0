// Command stowrctl is a thin command-line front end over the stowr
// engine. It is glue, not core: argument parsing and output printing
// live here so the engine package stays purely programmatic.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	stowr "github.com/XiaoLinXiaoZhu/stowr-core"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "stowrctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "store":
		return cmdStore(rest)
	case "owe":
		return cmdOwe(rest)
	case "list":
		return cmdList(rest)
	case "search":
		return cmdSearch(rest)
	case "rename":
		return cmdRename(rest)
	case "delete":
		return cmdDelete(rest)
	case "fsck":
		return cmdFsck(rest)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: stowrctl <command> [flags]

Commands:
  store <path>           Store a file into the engine
  owe <path>             Restore a file from the engine
  list                   List tracked paths
  search <glob>          Search tracked paths by glob
  rename <old> <new>     Rename a tracked path
  delete <path>          Delete a tracked path and release its object
  fsck                   Repair orphaned objects/records

All commands accept --storage-path (default ./stowr_store).`)
}

func openEngine(storagePath string) (*stowr.Engine, error) {
	cfg := stowr.Load()
	if storagePath != "" {
		cfg.StoragePath = storagePath
	}
	return stowr.Open(cfg)
}

func cmdStore(args []string) error {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	keepOriginal := fs.Bool("keep-original", false, "Keep the source file after storing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("store requires exactly one path")
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.StoreFile(fs.Arg(0), *keepOriginal)
}

func cmdOwe(args []string) error {
	fs := flag.NewFlagSet("owe", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("owe requires exactly one path")
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.OweFile(fs.Arg(0))
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.ListFiles()
	if err != nil {
		return err
	}
	for _, ent := range entries {
		fmt.Printf("%s\t%s\t%d\n", ent.Path, ent.Kind, ent.OriginalSize)
	}
	return nil
}

func cmdSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("search requires exactly one glob pattern")
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.SearchFiles(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, ent := range entries {
		fmt.Printf("%s\t%s\t%d\n", ent.Path, ent.Kind, ent.OriginalSize)
	}
	return nil
}

func cmdRename(args []string) error {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("rename requires <old> <new>")
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.RenameFile(fs.Arg(0), fs.Arg(1))
}

func cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("delete requires exactly one path")
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.DeleteFile(fs.Arg(0))
}

func cmdFsck(args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ContinueOnError)
	storagePath := fs.String("storage-path", "", "Storage root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEngine(*storagePath)
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := e.Fsck()
	if err != nil {
		return err
	}
	fmt.Printf("removed %d orphan blobs, %d orphan meta records, %d integrity violations\n",
		len(summary.OrphanBlobsRemoved), len(summary.OrphanMetaRemoved), len(summary.IntegrityViolations))
	return nil
}
