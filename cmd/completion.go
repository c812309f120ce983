package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_lockbot() {
    local cur prev words cword
    _init_completion || return

    local commands="serve lock unlock ls diff reconcile compact token help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        serve|ls|reconcile|compact)
            COMPREPLY=($(compgen -W "-config" -- "$cur"))
            ;;
        lock)
            _filedir
            ;;
        unlock|diff)
            if [[ $cword -eq 2 ]]; then
                local locked
                locked=$(lockbot ls 2>/dev/null | grep -E '^  /' | sed 's/ (.*//' | sed 's|/$||')
                COMPREPLY=($(compgen -W "$locked" -- "$cur"))
            else
                _filedir
            fi
            ;;
        token)
            COMPREPLY=($(compgen -W "set delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _lockbot lockbot
`

const zshCompletion = `#compdef lockbot

_lockbot() {
    local -a commands
    commands=(
        'serve:Run the Telegram bot'
        'lock:Encrypt a file or directory into a .locked artifact'
        'unlock:Restore a .locked artifact'
        'ls:List locked resources'
        'diff:Compare a locked artifact with local files'
        'reconcile:Adopt orphaned artifacts and prune stale entries'
        'compact:Compact the registry to reclaim disk space'
        'token:Manage the bot token in the OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'lockbot commands' commands
            ;;
        args)
            case "${words[2]}" in
                lock)
                    _arguments '*:file:_files'
                    ;;
                unlock)
                    _arguments '*:locked file:_lockbot_locked_files'
                    ;;
                diff)
                    _arguments '1:locked file:_lockbot_locked_files' '2:file:_files'
                    ;;
                token)
                    _values 'subcommand' set delete status
                    ;;
                help)
                    _describe -t commands 'lockbot commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_lockbot_locked_files() {
    local -a files
    files=(${(f)"$(lockbot ls 2>/dev/null | grep -E '^  /' | sed 's/ (.*//' | sed 's|/$||')"})
    _describe -t files 'locked files' files
}

_lockbot "$@"
`

const fishCompletion = `# lockbot fish completions

set -l commands serve lock unlock ls diff reconcile compact token help completion

complete -c lockbot -f

# Commands
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a serve -d 'Run the Telegram bot'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a lock -d 'Encrypt a file or directory'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a unlock -d 'Restore a locked artifact'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List locked resources'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare locked with local'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a reconcile -d 'Sync registry with disk'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact registry'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a token -d 'Manage bot token in OS keyring'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c lockbot -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# files
complete -c lockbot -n "__fish_seen_subcommand_from lock unlock diff" -F

# token subcommands
complete -c lockbot -n "__fish_seen_subcommand_from token" -a "set delete status"

# help completions
complete -c lockbot -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c lockbot -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
