// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a known, documented failure mode.
type Id int

const (
	KilnfileNotFoundId Id = iota + 1
	KilnfileParseErrorId
	ManifestNotFoundId
	ContainerEngineNotFoundId
	PlanInvalidId
	ImageBuildFailedId
	VerificationFailedId
)

// MarkdownMsg is the markdown help text attached to a known issue.
type MarkdownMsg string

// HttpLink is a documentation or external reference URL.
type HttpLink string

// Issue is a registered failure mode with rendered help text.
type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the issue's markdown help text with the given glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 {
		extraMd += "\n\n## See also:\n"
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	kilnfileNotFoundIssue = &Issue{
		id: KilnfileNotFoundId,
		mdMsg: `
# No kilnfile found!

We searched for a kilnfile but couldn't find one.

## Search locations (in order of precedence):
1. The path given via --file
2. ./kilnfile.cue in the current directory

## Things you can try:
- Scaffold a new recipe in the current directory:
~~~
$ kiln init
~~~

- Or point at an existing recipe:
~~~
$ kiln bake --file /path/to/kilnfile.cue
~~~`,
	}

	engineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available!

kiln needs Docker or Podman on the PATH to build and verify images.

## Things you can try:
- Install Docker or Podman and make sure the daemon/socket is running
- Check which engines kiln can see:
~~~
$ kiln engines
~~~
- Pin a specific engine in your config:
~~~
container_engine: "podman"
~~~`,
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Dependency manifest not found!

The recipe references a dependency manifest that doesn't exist on disk.

## Things you can try:
- Check the ` + "`manifest`" + ` path in your kilnfile
- Create the manifest file (one requirement per line):
~~~
Django>=3.2.4,<3.3
psycopg2>=2.8.6,<2.9
~~~`,
	}

	registry = map[Id]*Issue{
		KilnfileNotFoundId:        kilnfileNotFoundIssue,
		ContainerEngineNotFoundId: engineNotFoundIssue,
		ManifestNotFoundId:        manifestNotFoundIssue,
	}
)

// Lookup returns the registered Issue for the given id, or nil when the
// failure mode has no dedicated help text.
func Lookup(id Id) *Issue {
	return registry[id]
}
