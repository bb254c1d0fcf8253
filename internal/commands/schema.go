package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/beacon/internal/output"
)

// NewSchemaCmd creates the schema command. root is used by schema commands to collect command schemas.
func NewSchemaCmd(root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect command schemas for agent planning",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSchemaCommandsCmd(root))
	namespaceIndex(cmd)
	return cmd
}

func newSchemaCommandsCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Show command argument schemas with required-flag hints",
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Commands []commandArgSchema `json:"commands"`
			}
			schemas := make([]commandArgSchema, 0)
			collectCommandSchemas(root, &schemas)
			return output.PrintSuccess(resp{Commands: schemas})
		},
	}
}

type commandArgSchema struct {
	Command     string                 `json:"command"`
	Description string                 `json:"description,omitempty"`
	ArgsSchema  map[string]interface{} `json:"args_schema"`
}

func collectCommandSchemas(cmd *cobra.Command, out *[]commandArgSchema) {
	if cmd.Name() != "" && cmd.Name() != "beacon" && cmd.Name() != "schema" && !cmd.Hidden {
		*out = append(*out, buildCommandSchema(cmd))
	}

	for _, child := range cmd.Commands() {
		collectCommandSchemas(child, out)
	}
}

func buildCommandSchema(cmd *cobra.Command) commandArgSchema {
	properties := map[string]interface{}{}
	required := make([]string, 0)
	seen := map[string]bool{}

	addFlag := func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		if seen[f.Name] {
			return
		}
		seen[f.Name] = true

		flagSchema := map[string]interface{}{
			"type":        normalizeFlagType(f.Value.Type()),
			"description": f.Usage,
		}

		if f.DefValue != "" {
			flagSchema["default"] = typedFlagDefault(f.Value.Type(), f.DefValue)
		}

		if enumValues := parseEnumValues(f.Usage); len(enumValues) > 0 {
			flagSchema["enum"] = enumValues
		}

		properties[f.Name] = flagSchema

		if isRequiredFlag(f) {
			required = append(required, f.Name)
		}
	}

	cmd.InheritedFlags().VisitAll(addFlag)
	cmd.NonInheritedFlags().VisitAll(addFlag)

	argsSchema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		argsSchema["required"] = required
	}

	return commandArgSchema{
		Command:     cmd.CommandPath(),
		Description: cmd.Short,
		ArgsSchema:  argsSchema,
	}
}

func normalizeFlagType(flagType string) string {
	switch flagType {
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		return "integer"
	case "bool":
		return "boolean"
	default:
		return "string"
	}
}

func typedFlagDefault(flagType, def string) interface{} {
	switch flagType {
	case "bool":
		if v, err := strconv.ParseBool(def); err == nil {
			return v
		}
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		if v, err := strconv.Atoi(def); err == nil {
			return v
		}
	}
	return def
}

func isRequiredFlag(f *pflag.Flag) bool {
	if f.Annotations != nil {
		if _, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok {
			return true
		}
	}
	return strings.Contains(strings.ToLower(f.Usage), "(required)")
}

// parseEnumValues extracts enum candidates from usage text written either as
// "options: a|b|c" or as a short parenthesized list "(a, b)".
func parseEnumValues(usage string) []string {
	if usage == "" {
		return nil
	}

	if idx := strings.Index(usage, ":"); idx >= 0 && strings.Contains(usage[idx:], "|") {
		tail := strings.TrimSpace(usage[idx+1:])
		if end := strings.IndexAny(tail, " ."); end > 0 {
			tail = tail[:end]
		}
		return normalizeEnumParts(strings.Split(tail, "|"))
	}

	open := strings.LastIndex(usage, "(")
	closeIdx := strings.LastIndex(usage, ")")
	if open >= 0 && closeIdx > open {
		inner := usage[open+1 : closeIdx]
		if strings.HasPrefix(strings.TrimSpace(inner), "e.g.") {
			return nil
		}
		if strings.Contains(inner, ",") {
			return normalizeEnumParts(strings.Split(inner, ","))
		}
	}

	return nil
}

func normalizeEnumParts(parts []string) []string {
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.Trim(strings.TrimSpace(p), "[]")
		if v == "" || strings.ContainsAny(v, " .") {
			continue
		}
		values = append(values, v)
	}
	if len(values) < 2 {
		return nil
	}
	return values
}
