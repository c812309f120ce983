package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/lockbot/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(ctx, os.Args[2:])
	case "lock":
		runLock(ctx, os.Args[2:])
	case "unlock":
		runUnlock(ctx, os.Args[2:])
	case "ls":
		runLs(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "reconcile":
		runReconcile(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "token":
		runToken(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// parse sets up the flags shared by every command that reads the config
func parse(name string, args []string) (*flag.FlagSet, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return fs, *configPath
}

func runServe(ctx context.Context, args []string) {
	_, configPath := parse("serve", args)
	cmd.Serve(ctx, configPath)
}

func runLock(ctx context.Context, args []string) {
	fs, configPath := parse("lock", args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: lockbot lock [-config file] <path> [path...]")
		os.Exit(1)
	}
	cmd.Lock(ctx, configPath, fs.Args())
}

func runUnlock(ctx context.Context, args []string) {
	fs, configPath := parse("unlock", args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: lockbot unlock [-config file] <path.locked> [path.locked...]")
		os.Exit(1)
	}
	cmd.Unlock(ctx, configPath, fs.Args())
}

func runLs(_ context.Context, args []string) {
	_, configPath := parse("ls", args)
	cmd.Ls(configPath)
}

func runDiff(ctx context.Context, args []string) {
	fs, configPath := parse("diff", args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: lockbot diff [-config file] <path.locked> [local path]")
		os.Exit(1)
	}
	cmd.Diff(ctx, configPath, fs.Arg(0), fs.Arg(1))
}

func runReconcile(ctx context.Context, args []string) {
	_, configPath := parse("reconcile", args)
	cmd.Reconcile(ctx, configPath)
}

func runCompact(_ context.Context, args []string) {
	_, configPath := parse("compact", args)
	cmd.Compact(configPath)
}

func runToken(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lockbot token <set|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "set":
		cmd.TokenSet()
	case "delete":
		cmd.TokenDelete()
	case "status":
		cmd.TokenStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown token command: %s\n", args[0])
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lockbot completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("lockbot - Lock files on a remote machine from Telegram")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lockbot <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Run the Telegram bot")
	fmt.Println("  lock        Encrypt files or directories into .locked artifacts")
	fmt.Println("  unlock      Restore .locked artifacts")
	fmt.Println("  ls          List locked resources")
	fmt.Println("  diff        Compare a locked artifact with local files")
	fmt.Println("  reconcile   Adopt orphaned artifacts and prune stale entries")
	fmt.Println("  compact     Compact the registry to reclaim disk space")
	fmt.Println("  token       Manage the bot token in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  lockbot token set               # Store the bot token")
	fmt.Println("  LOCKBOT_OWNER_ID=123 lockbot serve")
	fmt.Println("  lockbot lock ~/notes            # Lock a directory")
	fmt.Println("  lockbot unlock ~/notes.locked   # Restore it")
	fmt.Println()
	fmt.Println("Use 'lockbot help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "serve":
		fmt.Println("lockbot serve [-config file]")
		fmt.Println()
		fmt.Println("Runs the bot with long polling until interrupted.")
		fmt.Println("Only the configured owner can issue commands.")
		fmt.Println("Orphaned artifacts are reconciled at startup.")
		fmt.Println()
		fmt.Println("Configuration (environment overrides the file):")
		fmt.Println("  LOCKBOT_TOKEN     Bot token (falls back to the OS keyring)")
		fmt.Println("  LOCKBOT_OWNER_ID  Telegram user id of the owner")
		fmt.Println("  LOCKBOT_DATA_DIR  Directory of the registry and config.yaml")
		fmt.Println("  LOCKBOT_ROOTS     Allowed roots, separated by the OS list separator")
		fmt.Println("  LOCKBOT_LOG_LEVEL debug, info, warn or error")
	case "lock":
		fmt.Println("lockbot lock [-config file] <path> [path...]")
		fmt.Println()
		fmt.Println("Encrypts each file or directory into <path>.locked and removes the original.")
		fmt.Println("Prompts for the password twice unless LOCKBOT_PASSWORD is set.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  lockbot lock .env")
		fmt.Println("  lockbot lock ~/private")
	case "unlock":
		fmt.Println("lockbot unlock [-config file] <path.locked> [path.locked...]")
		fmt.Println()
		fmt.Println("Decrypts each artifact back to its original location.")
		fmt.Println("Refuses to overwrite an existing file or directory.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  lockbot unlock .env.locked")
	case "ls":
		fmt.Println("lockbot ls [-config file]")
		fmt.Println()
		fmt.Println("Lists the registry. Does not require a password.")
	case "diff":
		fmt.Println("lockbot diff [-config file] <path.locked> [local path]")
		fmt.Println()
		fmt.Println("Decrypts the artifact in memory and compares it with the local path,")
		fmt.Println("which defaults to the artifact's original location.")
		fmt.Println("Directories are compared file by file.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  lockbot diff .env.locked .env.example")
	case "reconcile":
		fmt.Println("lockbot reconcile [-config file]")
		fmt.Println()
		fmt.Println("Scans the allowed roots for .locked artifacts missing from the registry")
		fmt.Println("and removes entries whose artifact no longer exists.")
	case "compact":
		fmt.Println("lockbot compact [-config file]")
		fmt.Println()
		fmt.Println("Compacts the registry database to reclaim unused disk space.")
		fmt.Println("Does not require a password.")
	case "token":
		fmt.Println("lockbot token <set|delete|status>")
		fmt.Println()
		fmt.Println("Stores the bot token in the OS keyring so it need not live in the")
		fmt.Println("environment or the config file.")
	case "completion":
		fmt.Println("lockbot completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(lockbot completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(lockbot completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  lockbot completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
