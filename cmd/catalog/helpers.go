// Shared helpers for catalog CLI commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// Output formats.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userErr(err error) error { return &exitError{code: exitUserError, err: err} }
func sysErr(err error) error  { return &exitError{code: exitSysError, err: err} }

// userErrors are store errors caused by the request rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidName,
	types.ErrDuplicateName,
	types.ErrChainedReference,
	types.ErrInvalidParent,
	types.ErrCyclicMove,
	types.ErrDetachedNode,
	types.ErrNodeMismatch,
	types.ErrPositionTaken,
	types.ErrDuplicateFacet,
	types.ErrFacetConflict,
}

// exitCode maps an error to an exit code. Unclassified errors from cobra
// (unknown flags, wrong argument counts) are user errors.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// storeErr classifies an error returned by the store.
func storeErr(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return userErr(err)
		}
	}
	return sysErr(err)
}

// format returns the selected output format.
func (a *app) format() (string, error) {
	if a.flags.jsonMode {
		return outputJSON, nil
	}
	switch a.flags.output {
	case outputText, outputJSON, outputYAML:
		return a.flags.output, nil
	default:
		return "", userErr(fmt.Errorf("unknown output format %q (valid: text, json, yaml)", a.flags.output))
	}
}

// emit writes v as JSON or YAML, or calls text for the human format.
func (a *app) emit(v any, text func() error) error {
	f, err := a.format()
	if err != nil {
		return err
	}
	switch f {
	case outputJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return sysErr(fmt.Errorf("marshal JSON: %w", err))
		}
		fmt.Fprintln(a.stdout, string(out))
	case outputYAML:
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return sysErr(fmt.Errorf("marshal YAML: %w", err))
		}
		return enc.Close()
	default:
		return text()
	}
	return nil
}

// collectionByName looks a collection up by name, falling back to its ID.
func (a *app) collectionByName(ctx context.Context, name string) (*types.Collection, error) {
	c, err := a.store.GetCollectionByName(ctx, name)
	if errors.Is(err, types.ErrNotFound) {
		c, err = a.store.GetCollection(ctx, name)
	}
	if err != nil {
		return nil, storeErr(fmt.Sprintf("collection %q", name), err)
	}
	return c, nil
}

// positionFlag returns nil when the --position flag was not given.
func positionFlag(cmd *cobra.Command, pos int) *int {
	if !cmd.Flags().Changed("position") {
		return nil
	}
	return &pos
}

func describeNode(n *types.TreeNode) string {
	var flags []string
	if !n.Visible {
		flags = append(flags, "invisible")
	}
	if n.Virtual {
		flags = append(flags, "virtual")
	}
	s := fmt.Sprintf("%s tree=%s [%d,%d] depth=%d", n.NodeID, n.TreeID, n.Left, n.Right, n.Depth)
	if len(flags) > 0 {
		s += " (" + strings.Join(flags, ",") + ")"
	}
	return s
}

// printMetrics writes the operation counters gathered during the command.
func (a *app) printMetrics() error {
	if !a.flags.metrics || a.reg == nil {
		return nil
	}
	families, err := a.reg.Gather()
	if err != nil {
		return sysErr(fmt.Errorf("gather metrics: %w", err))
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			lines = append(lines, mf.GetName()+labelString(m.GetLabel())+" "+strconv.FormatFloat(value, 'g', -1, 64))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(a.stderr, l)
	}
	return nil
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
