package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/handlers"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/jobs"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/moderation"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade <kind> <id>",
	Short: "Delete a root entity and every record derived from it",
	Long: `Delete a root entity and fan the deletion out to every denormalized copy.
Kinds: post, comment, user, like, hashtag-index. Comment and like ids are
compound: <postId>/<commentId> and <postId>/<uid>.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := confirmDestructive(fmt.Sprintf("Delete %s %s and everything derived from it", args[0], args[1])); err != nil {
			return err
		}
		return invoke(cmd.Context(), handlers.Action{
			Action: handlers.ActionCascade,
			Kind:   args[0],
			ID:     args[1],
		}, printCascade)
	},
}

var moderateCmd = &cobra.Command{
	Use:   "moderate [text]",
	Short: "Print the sanitized form of text (reads stdin when no text is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			text = strings.TrimRight(string(data), "\n")
		}
		return invoke(cmd.Context(), handlers.Action{Action: handlers.ActionModerate, Text: &text}, printVerdict)
	},
}

var blurDryRun bool

var blurCheckCmd = &cobra.Command{
	Use:   "blur-check <image-ref>",
	Short: "Classify an image and blur it when it is flagged",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.Context(), handlers.Action{
			Action:   handlers.ActionBlurCheck,
			ImageRef: args[0],
			DryRun:   blurDryRun,
		}, printBlur)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run the scheduled cleanup jobs once",
}

var deleteOldPostsCmd = &cobra.Command{
	Use:   "delete-old-posts",
	Short: "Expire posts older than POST_MAX_AGE",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.Context(), handlers.Action{Action: handlers.ActionDeleteOldPosts}, printJob)
	},
}

var deleteInactiveCmd = &cobra.Command{
	Use:   "delete-inactive-accounts",
	Short: "Delete accounts not signed in within INACTIVITY_WINDOW",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := confirmDestructive("Delete every inactive account and its data"); err != nil {
			return err
		}
		return invoke(cmd.Context(), handlers.Action{Action: handlers.ActionDeleteInactiveAccounts}, printJob)
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage public profiles",
}

var updateAllProfilesCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Republish the public profile of every account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.Context(), handlers.Action{Action: handlers.ActionUpdateProfiles}, func(res any) {
			if m, ok := res.(map[string]int); ok {
				fmt.Printf("%s %d profiles updated\n", green("✓"), m["updated"])
			}
		})
	},
}

var hookPayload string

var hookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "Dispatch a write or identity event to the hook handlers",
	Long: `Dispatch an event as if the tree store or identity provider had emitted it.
Events: write, user-created, user-deleted, object-finalized.
The payload is JSON, e.g. --payload '{"path":"/posts/p1","after":{"text":"hi"}}'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p hooks.Payload
		if hookPayload != "" {
			if err := jsonAPI.UnmarshalFromString(hookPayload, &p); err != nil {
				return fmt.Errorf("invalid --payload: %w", err)
			}
		}
		return invoke(cmd.Context(), handlers.Action{Action: handlers.ActionHook, Event: args[0], Payload: &p}, func(res any) {
			if out, ok := res.(*hooks.Outcome); ok && out != nil {
				fmt.Printf("%s %s ran %s\n", green("✓"), out.Event, strings.Join(out.Handlers, ", "))
			}
		})
	},
}

func init() {
	cascadeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	deleteInactiveCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	blurCheckCmd.Flags().BoolVar(&blurDryRun, "dry-run", false, "Classify only, never blur")
	hookCmd.Flags().StringVar(&hookPayload, "payload", "", "Event payload as JSON")

	jobsCmd.AddCommand(deleteOldPostsCmd)
	jobsCmd.AddCommand(deleteInactiveCmd)
	profilesCmd.AddCommand(updateAllProfilesCmd)
}

func printCascade(res any) {
	r, isReport := res.(*cascade.Report)
	if !isReport || r == nil {
		return
	}
	switch {
	case r.Coalesced:
		fmt.Printf("%s %s %s is already being cascaded elsewhere\n", yellow("~"), r.Kind, r.ID)
		return
	case r.Complete():
		fmt.Printf("%s %s %s: %d paths removed in %s\n", green("✓"), r.Kind, r.ID, r.Succeeded, r.Duration)
	default:
		fmt.Printf("%s %s %s: %d of %d work items failed\n", red("✗"), r.Kind, r.ID, len(r.Failures), len(r.Planned))
	}
	for _, p := range r.Planned {
		fmt.Println("  " + faint(p))
	}
	for _, f := range r.Failures {
		fmt.Printf("  %s %s\n", red("failed"), f.Unit)
	}
	for _, f := range r.ScanFailures {
		fmt.Printf("  %s %s\n", red("scan"), f.Error())
	}
}

func printVerdict(res any) {
	v, isVerdict := res.(models.ModerationVerdict)
	if !isVerdict {
		return
	}
	mark := green("clean")
	if v.WasModified {
		mark = yellow("modified")
	}
	fmt.Printf("%s %s\n", mark, v.Text)
	for _, r := range v.Reasons {
		fmt.Println("  " + faint(string(r)))
	}
}

func printBlur(res any) {
	r, isResult := res.(*moderation.BlurResult)
	if !isResult || r == nil {
		return
	}
	switch r.Outcome {
	case moderation.OutcomeSafe:
		fmt.Printf("%s %s is safe\n", green("✓"), r.ImageRef)
	case moderation.OutcomeFlagged:
		verb := "flagged"
		if r.Blurred {
			verb = "flagged and blurred"
		}
		fmt.Printf("%s %s %s (adult %s, violence %s)\n", yellow("!"), r.ImageRef, verb, r.Scores.Adult, r.Scores.Violence)
	default:
		fmt.Printf("%s %s could not be verified\n", red("?"), r.ImageRef)
	}
}

func printJob(res any) {
	r, isResult := res.(*jobs.Result)
	if !isResult || r == nil {
		return
	}
	fmt.Printf("%s %s: %d selected", green("✓"), r.Job, r.Selected)
	if r.Pool != nil {
		fmt.Printf(", %d succeeded, %d failed", r.Pool.Succeeded, r.Pool.Failed())
	}
	fmt.Println()
	if r.Pool != nil {
		for _, u := range r.Pool.FailedUnits() {
			fmt.Printf("  %s %s\n", red("failed"), u)
		}
	}
}
