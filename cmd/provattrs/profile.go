package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// ProfilesConfig holds all named profiles and tracks which one is active.
type ProfilesConfig struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named database connection.
type Profile struct {
	DatabaseURL string `toml:"database_url"`
	NATSURL     string `toml:"nats_url,omitempty"`
	Namespace   string `toml:"namespace,omitempty"`
	Timezone    string `toml:"timezone,omitempty"`
}

// apply exports the profile as PROVATTRS_* variables. Unless override is
// set, variables already present in the environment win.
func (p Profile) apply(override bool) {
	for key, value := range map[string]string{
		"PROVATTRS_DATABASE_URL":   p.DatabaseURL,
		"PROVATTRS_NATS_URL":       p.NATSURL,
		"PROVATTRS_NATS_NAMESPACE": p.Namespace,
		"PROVATTRS_TIMEZONE":       p.Timezone,
	} {
		if value == "" {
			continue
		}
		if override || os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func profilesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "provattrs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

func loadProfiles() (ProfilesConfig, error) {
	path, err := profilesPath()
	if err != nil {
		return ProfilesConfig{}, err
	}
	var cfg ProfilesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return ProfilesConfig{Profiles: map[string]Profile{}}, nil
		}
		return ProfilesConfig{}, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

func saveProfiles(cfg ProfilesConfig) error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// resolveProfile returns the named profile, or the active one when name is
// empty. No active profile yields the zero Profile.
func resolveProfile(name string) (Profile, error) {
	cfg, err := loadProfiles()
	if err != nil {
		return Profile{}, err
	}
	if name == "" {
		name = cfg.Active
	}
	if name == "" {
		return Profile{}, nil
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named database profiles",
	// Profiles are local file operations; skip the database connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <database-url>",
	Short: "Add or update a named profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		natsURL, _ := cmd.Flags().GetString("nats")
		namespace, _ := cmd.Flags().GetString("namespace")
		tz, _ := cmd.Flags().GetString("timezone")

		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		cfg.Profiles[name] = Profile{DatabaseURL: args[1], NATSURL: natsURL, Namespace: namespace, Timezone: tz}
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q added\n", name)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		delete(cfg.Profiles, name)
		if cfg.Active == name {
			cfg.Active = ""
		}
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q removed\n", name)
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("profile %q not found", name)
		}
		cfg.Active = name
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active profile set to %q\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if len(cfg.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no profiles configured")
			return nil
		}
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tDATABASE\tNATS")
		for _, name := range names {
			p := cfg.Profiles[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, name, redactURL(p.DatabaseURL), p.NATSURL)
		}
		return w.Flush()
	},
}

func init() {
	profileAddCmd.Flags().String("nats", "", "NATS URL for events")
	profileAddCmd.Flags().String("namespace", "", "NATS subject namespace")
	profileAddCmd.Flags().String("timezone", "", "zone for naive dates")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileListCmd)
}
