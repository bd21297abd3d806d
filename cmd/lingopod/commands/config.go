package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lingopod/lingopod/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration contexts",
}

var (
	addAPIKey       string
	addModel        string
	addTransport    string
	addWebSocketURL string
	addSignalingURL string
	addGeminiKey    string
)

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if addAPIKey == "" {
			return fmt.Errorf("--api-key is required")
		}
		name := args[0]
		err := globalConfig.AddContext(name, &cli.Context{
			APIKey:       addAPIKey,
			Model:        addModel,
			Transport:    addTransport,
			WebSocketURL: addWebSocketURL,
			SignalingURL: addSignalingURL,
			GeminiAPIKey: addGeminiKey,
		})
		if err != nil {
			return err
		}
		if globalConfig.CurrentContext == "" {
			if err := globalConfig.UseContext(name); err != nil {
				return err
			}
		}
		cli.PrintSuccess("Context %q saved", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Current context is %q", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range globalConfig.ListContexts() {
			marker := "  "
			if name == globalConfig.CurrentContext {
				marker = "* "
			}
			fmt.Println(marker + name)
		}
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context with masked credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		ctx, err := globalConfig.ResolveContext(name)
		if err != nil {
			return err
		}
		shown := *ctx
		shown.APIKey = cli.MaskAPIKey(ctx.APIKey)
		shown.GeminiAPIKey = cli.MaskAPIKey(ctx.GeminiAPIKey)
		return outputResult(shown)
	},
}

func init() {
	configAddContextCmd.Flags().StringVar(&addAPIKey, "api-key", "", "realtime API key (required)")
	configAddContextCmd.Flags().StringVar(&addModel, "model", "", "realtime model id")
	configAddContextCmd.Flags().StringVar(&addTransport, "transport", "", "transport: websocket or webrtc")
	configAddContextCmd.Flags().StringVar(&addWebSocketURL, "websocket-url", "", "websocket endpoint override")
	configAddContextCmd.Flags().StringVar(&addSignalingURL, "signaling-url", "", "WebRTC signaling endpoint override")
	configAddContextCmd.Flags().StringVar(&addGeminiKey, "gemini-api-key", "", "Gemini API key for goal evaluation")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configShowCmd)
}
