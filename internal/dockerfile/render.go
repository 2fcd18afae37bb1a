// SPDX-License-Identifier: MPL-2.0

// Package dockerfile renders a validated provisioning plan into Dockerfile
// text. All consecutive RUN fragments collapse into a single chained layer,
// so the provisioning sequence either completes as a unit or leaves no
// partially provisioned layer behind.
package dockerfile

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"kiln/internal/pipeline"
)

// Header is written at the top of every rendered Dockerfile.
const Header = "# Generated by kiln. Do not edit."

// continuation joins chained RUN fragments across lines.
const continuation = " && \\\n    "

// Render validates the plan and renders it as a Dockerfile. The generated
// shell of every RUN layer is parsed before the text is returned, so a
// malformed fragment fails here rather than inside the engine build.
func Render(plan *pipeline.Plan) (string, error) {
	if _, err := plan.Validate(); err != nil {
		return "", fmt.Errorf("invalid plan: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(Header + "\n")
	fmt.Fprintf(&sb, "%s %s\n", pipeline.DirectiveFrom, plan.BaseImage)

	var chain []string
	flush := func() error {
		if len(chain) == 0 {
			return nil
		}
		script := strings.Join(chain, continuation)
		if err := checkShell(script); err != nil {
			return err
		}
		fmt.Fprintf(&sb, "%s %s\n", pipeline.DirectiveRun, script)
		chain = nil
		return nil
	}

	for _, instr := range plan.Instructions() {
		if instr.Directive == pipeline.DirectiveRun {
			chain = append(chain, instr.Args)
			continue
		}
		if err := flush(); err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s %s\n", instr.Directive, instr.Args)
	}
	if err := flush(); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// checkShell parses a RUN layer's script as POSIX shell.
func checkShell(script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(script), "RUN"); err != nil {
		return fmt.Errorf("generated RUN script does not parse: %w", err)
	}
	return nil
}
