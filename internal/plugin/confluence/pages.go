package confluence

import (
	"context"
	"fmt"

	"github.com/skillsd/skillsd/internal/connector"
)

// getPage retrieves a page with its storage body. Callers can override
// the expansions with an "expand" input.
func (c *Connector) getPage(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("get_page", inputs, "page_id"); err != nil {
		return nil, err
	}

	path, err := c.BuildURL("/content/{page_id}", inputs)
	if err != nil {
		return nil, err
	}

	query := map[string]interface{}{"expand": "body.storage,version,space"}
	for key, value := range inputs {
		query[key] = value
	}
	path += c.QueryString(query, []string{"page_id"})

	resp, err := c.Send(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := c.DecodeJSON(resp, &page); err != nil {
		return nil, err
	}

	return c.Result(resp, pageSummary(page, true)), nil
}

// searchPages runs a CQL search over content. Pagination inputs (start,
// limit) pass through as query parameters.
func (c *Connector) searchPages(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("search_pages", inputs, "cql"); err != nil {
		return nil, err
	}

	path := "/content/search" + c.QueryString(inputs, nil)

	resp, err := c.Send(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var results SearchResults
	if err := c.DecodeJSON(resp, &results); err != nil {
		return nil, err
	}

	pages := make([]map[string]interface{}, len(results.Results))
	for i, page := range results.Results {
		pages[i] = pageSummary(page, false)
	}

	return c.Result(resp, map[string]interface{}{
		"results": pages,
		"start":   results.Start,
		"limit":   results.Limit,
		"size":    results.Size,
	}), nil
}

// createPage creates a page in a space. An optional parent_id nests the
// page under an existing one.
func (c *Connector) createPage(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("create_page", inputs, "space", "title", "body"); err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"type":  "page",
		"title": inputs["title"],
		"space": map[string]string{"key": fmt.Sprint(inputs["space"])},
		"body": map[string]interface{}{
			"storage": map[string]interface{}{
				"value":          inputs["body"],
				"representation": "storage",
			},
		},
	}
	if parentID, ok := inputs["parent_id"]; ok {
		requestBody["ancestors"] = []map[string]interface{}{
			{"id": fmt.Sprint(parentID)},
		}
	}

	body, err := c.MarshalBody("create_page", requestBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, "POST", "/content", nil, body)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := c.DecodeJSON(resp, &page); err != nil {
		return nil, err
	}

	return c.Result(resp, pageSummary(page, false)), nil
}

// pageSummary flattens a page into the simplified response shape. The
// storage body is included only when withBody is set.
func pageSummary(page Page, withBody bool) map[string]interface{} {
	summary := map[string]interface{}{
		"id":     page.ID,
		"title":  page.Title,
		"status": page.Status,
	}
	if page.Type != "" {
		summary["type"] = page.Type
	}
	if page.Space != nil {
		summary["space"] = page.Space.Key
	}
	if page.Version != nil {
		summary["version"] = page.Version.Number
	}
	if page.Links != nil && page.Links.WebUI != "" {
		summary["url"] = page.Links.WebUI
	}
	if withBody && page.Body != nil && page.Body.Storage != nil {
		summary["body"] = page.Body.Storage.Value
	}

	return summary
}
