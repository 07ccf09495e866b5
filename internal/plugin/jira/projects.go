package jira

import (
	"context"

	"github.com/skillsd/skillsd/internal/connector"
)

// listProjects retrieves the projects visible to the authenticated user.
func (c *Connector) listProjects(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	path := "/project" + c.QueryString(inputs, nil)

	resp, err := c.Send(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var projects []Project
	if err := c.DecodeJSON(resp, &projects); err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, len(projects))
	for i, project := range projects {
		result[i] = map[string]interface{}{
			"id":   project.ID,
			"key":  project.Key,
			"name": project.Name,
			"self": project.Self,
		}
	}

	return c.Result(resp, result), nil
}
