package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/hyperifyio/gomag/internal/page"
)

// ContainerSelector matches a generic article container.
const ContainerSelector = "article"

// Locator is one strategy for picking the article container on a page. It
// returns a nil node when it has nothing to offer. Locators are tried in
// order, each bounded by the step timeout carried in ctx.
type Locator struct {
	Name   string
	Locate func(ctx context.Context, p page.Page, statusID string) (page.Node, error)
}

// DefaultLocators prefers the container that links to the requested status
// and falls back to the first container on the page.
func DefaultLocators() []Locator {
	return []Locator{
		{Name: "anchored", Locate: locateAnchored},
		{Name: "first", Locate: locateFirst},
	}
}

// locateAnchored waits for a container holding a link to the status, then
// confirms the id matches exactly so that /status/11 never selects 111.
func locateAnchored(ctx context.Context, p page.Page, statusID string) (page.Node, error) {
	sel := ContainerSelector + ` a[href*="/status/` + statusID + `"]`
	if err := p.WaitFor(ctx, sel); err != nil {
		return nil, err
	}
	containers, err := p.Query(ctx, ContainerSelector)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		for _, a := range c.Find(`a[href*="/status/"]`) {
			href, _ := a.Attr("href")
			if hrefStatusID(href) == statusID {
				return c, nil
			}
		}
	}
	return nil, nil
}

func locateFirst(ctx context.Context, p page.Page, _ string) (page.Node, error) {
	containers, err := p.Query(ctx, ContainerSelector)
	if err != nil || len(containers) == 0 {
		return nil, err
	}
	return containers[0], nil
}

// hrefStatusID returns the path segment following "status" in a link, which
// may be relative ("/alice/status/1/photo/1") or absolute.
func hrefStatusID(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "status" || parts[i] == "statuses" {
			return parts[i+1]
		}
	}
	return ""
}
