package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/resonancehq/resonance/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: create the data directory and the first LLM profile",
		Run: func(cmd *cobra.Command, args []string) {
			if !runOnboard() {
				os.Exit(1)
			}
		},
	}
}

// runOnboard walks the user through the first profile and persists
// config.yaml + profiles.yaml under the data root. Returns false when
// the wizard is aborted or the write fails.
func runOnboard() bool {
	root := config.ExpandHome(resolveDataDir())
	fmt.Println("Welcome to Resonance! Let's set up your host.")
	fmt.Printf("Data directory: %s\n\n", root)

	var (
		profileID = "default"
		baseURL   string
		apiKey    string
		model     string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profile name").
				Description("Profiles hold one LLM endpoint each; you can add more later.").
				Value(&profileID).
				Validate(notEmpty("profile name")),
			huh.NewInput().
				Title("Base URL").
				Description("Any OpenAI-compatible endpoint. Leave empty for api.openai.com.").
				Placeholder("https://api.openai.com/v1").
				Value(&baseURL),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(notEmpty("API key")),
			huh.NewInput().
				Title("Model").
				Placeholder("gpt-4o-mini").
				Value(&model).
				Validate(notEmpty("model")),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Setup aborted: %v\n", err)
		return false
	}

	cfg, err := config.Open(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open data directory: %v\n", err)
		return false
	}
	if err := cfg.UpdateProfiles(func(profiles map[string]config.Profile) error {
		profiles[profileID] = config.Profile{
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Model:       model,
			Temperature: 0.7,
		}
		return nil
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save profile: %v\n", err)
		return false
	}
	if err := cfg.SetActiveProfile(profileID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to activate profile: %v\n", err)
		return false
	}

	fmt.Println()
	fmt.Println("✅ Setup complete!")
	fmt.Printf("   Profile %q (model %s) is active.\n", profileID, model)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  resonance serve            # start the host")
	fmt.Println("  resonance chat \"hello\"     # talk to it")
	return true
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
