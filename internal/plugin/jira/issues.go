package jira

import (
	"context"
	"fmt"

	"github.com/skillsd/skillsd/internal/connector"
)

// getIssue retrieves a single issue and returns a simplified view.
// Optional inputs (fields, expand) pass through as query parameters.
func (c *Connector) getIssue(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("get_issue", inputs, "issue_key"); err != nil {
		return nil, err
	}

	path, err := c.BuildURL("/issue/{issue_key}", inputs)
	if err != nil {
		return nil, err
	}
	path += c.QueryString(inputs, []string{"issue_key"})

	resp, err := c.Send(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := c.DecodeJSON(resp, &issue); err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"id":      issue.ID,
		"key":     issue.Key,
		"self":    issue.Self,
		"summary": issue.Fields.Summary,
	}
	if issue.Fields.Description != nil {
		result["description"] = issue.Fields.Description
	}
	if issue.Fields.Status != nil {
		result["status"] = issue.Fields.Status.Name
	}
	if issue.Fields.IssueType != nil {
		result["issuetype"] = issue.Fields.IssueType.Name
	}
	if issue.Fields.Assignee != nil {
		result["assignee"] = map[string]interface{}{
			"accountId":   issue.Fields.Assignee.AccountID,
			"displayName": issue.Fields.Assignee.DisplayName,
		}
	}
	if issue.Fields.Priority != nil {
		result["priority"] = issue.Fields.Priority.Name
	}
	if len(issue.Fields.Labels) > 0 {
		result["labels"] = issue.Fields.Labels
	}

	return c.Result(resp, result), nil
}

// searchIssues runs a JQL search. Pagination and projection inputs
// (startAt, maxResults, fields, expand) are forwarded in the request
// body per the Jira search API.
func (c *Connector) searchIssues(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("search_issues", inputs, "jql"); err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"jql": inputs["jql"],
	}
	for _, key := range []string{"startAt", "maxResults", "fields", "expand"} {
		if value, ok := inputs[key]; ok {
			requestBody[key] = value
		}
	}

	body, err := c.MarshalBody("search_issues", requestBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, "POST", "/search", nil, body)
	if err != nil {
		return nil, err
	}

	var results SearchResults
	if err := c.DecodeJSON(resp, &results); err != nil {
		return nil, err
	}

	issues := make([]map[string]interface{}, len(results.Issues))
	for i, issue := range results.Issues {
		entry := map[string]interface{}{
			"id":      issue.ID,
			"key":     issue.Key,
			"self":    issue.Self,
			"summary": issue.Fields.Summary,
		}
		if issue.Fields.Status != nil {
			entry["status"] = issue.Fields.Status.Name
		}
		if issue.Fields.IssueType != nil {
			entry["issuetype"] = issue.Fields.IssueType.Name
		}
		if issue.Fields.Assignee != nil {
			entry["assignee"] = issue.Fields.Assignee.DisplayName
		}
		issues[i] = entry
	}

	return c.Result(resp, map[string]interface{}{
		"issues":     issues,
		"startAt":    results.StartAt,
		"maxResults": results.MaxResults,
		"total":      results.Total,
	}), nil
}

// createIssue creates an issue. Unrecognized inputs pass through as
// custom fields so callers can set anything the project schema allows.
func (c *Connector) createIssue(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("create_issue", inputs, "project", "summary", "issuetype"); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"project":   map[string]string{"key": fmt.Sprint(inputs["project"])},
		"summary":   inputs["summary"],
		"issuetype": map[string]string{"name": fmt.Sprint(inputs["issuetype"])},
	}
	if description, ok := inputs["description"]; ok {
		fields["description"] = description
	}
	if assignee, ok := inputs["assignee"]; ok {
		fields["assignee"] = map[string]string{"accountId": fmt.Sprint(assignee)}
	}
	if priority, ok := inputs["priority"]; ok {
		fields["priority"] = map[string]string{"name": fmt.Sprint(priority)}
	}
	if labels, ok := inputs["labels"]; ok {
		fields["labels"] = labels
	}
	for key, value := range inputs {
		switch key {
		case "project", "summary", "issuetype", "description", "assignee", "priority", "labels", "extract":
		default:
			fields[key] = value
		}
	}

	body, err := c.MarshalBody("create_issue", map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, "POST", "/issue", nil, body)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := c.DecodeJSON(resp, &issue); err != nil {
		return nil, err
	}

	return c.Result(resp, map[string]interface{}{
		"id":   issue.ID,
		"key":  issue.Key,
		"self": issue.Self,
	}), nil
}

// addComment adds a comment to an issue. The body may be a plain string
// or an ADF document; it is forwarded as-is.
func (c *Connector) addComment(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	if err := c.RequireInputs("add_comment", inputs, "issue_key", "body"); err != nil {
		return nil, err
	}

	path, err := c.BuildURL("/issue/{issue_key}/comment", inputs)
	if err != nil {
		return nil, err
	}

	body, err := c.MarshalBody("add_comment", map[string]interface{}{"body": inputs["body"]})
	if err != nil {
		return nil, err
	}

	resp, err := c.Send(ctx, "POST", path, nil, body)
	if err != nil {
		return nil, err
	}

	var comment Comment
	if err := c.DecodeJSON(resp, &comment); err != nil {
		return nil, err
	}

	return c.Result(resp, map[string]interface{}{
		"id":      comment.ID,
		"self":    comment.Self,
		"created": comment.Created,
	}), nil
}

// addAttachment is declared but not implemented; attachment upload
// needs multipart/form-data, which the JSON transport does not speak.
func (c *Connector) addAttachment(ctx context.Context, inputs map[string]interface{}) (*connector.Result, error) {
	return nil, &connector.Error{
		Type:      connector.ErrorTypeNotImplemented,
		Connector: c.Name(),
		Operation: "add_attachment",
		Message:   "attachment upload requires multipart/form-data support",
	}
}
