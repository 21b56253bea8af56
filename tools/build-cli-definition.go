// SPDX-License-Identifier: Apache-2.0

// Command build-cli-definition writes a JSON description of the schemaboot
// commands and flags, including the environment variable that sets each
// persistent flag.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloudgames/schemaboot/cmd"
)

const envPrefix = "SCHEMABOOT_"

type Definition struct {
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Commands []Command `json:"commands"`
	Flags    []Flag    `json:"flags"`
}

type Command struct {
	Name    string   `json:"name"`
	Short   string   `json:"short"`
	Use     string   `json:"use"`
	Example string   `json:"example,omitempty"`
	Args    []string `json:"args"`
	Flags   []Flag   `json:"flags"`
}

type Flag struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Description string `json:"description"`
	Default     string `json:"default"`
	Env         string `json:"env,omitempty"`
}

func main() {
	output := "cli-definition.json"
	if len(os.Args) > 1 {
		output = os.Args[1]
	}

	root := cmd.Prepare()

	def := Definition{
		Name:     root.Name(),
		Version:  root.Version,
		Commands: commands(root),
		Flags:    flags(root.PersistentFlags(), true),
	}

	if err := writeJSON(output, def); err != nil {
		log.Fatalf("failed to write %s: %v", output, err)
	}
	fmt.Printf("CLI definition written to %s\n", output)
}

func commands(root *cobra.Command) []Command {
	cmds := make([]Command, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "help" || c.Name() == "completion" {
			continue
		}

		args := c.ValidArgs
		if args == nil {
			args = []string{}
		}

		cmds = append(cmds, Command{
			Name:    c.Name(),
			Short:   c.Short,
			Use:     c.Use,
			Example: c.Example,
			Args:    args,
			Flags:   flags(c.LocalNonPersistentFlags(), false),
		})
	}
	return cmds
}

// flags lists the flags of fs. Persistent flags are bound to an
// environment variable derived from the flag name.
func flags(fs *pflag.FlagSet, persistent bool) []Flag {
	out := []Flag{}
	fs.VisitAll(func(f *pflag.Flag) {
		flag := Flag{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Description: f.Usage,
			Default:     f.DefValue,
		}
		if persistent {
			flag.Env = envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		}
		out = append(out, flag)
	})
	return out
}

func writeJSON(filename string, data any) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}
