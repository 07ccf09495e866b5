package jira

import "time"

// Issue is a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the fields of a Jira issue.
type IssueFields struct {
	Summary     string      `json:"summary"`
	Description interface{} `json:"description"` // string or ADF document
	IssueType   *IssueType  `json:"issuetype,omitempty"`
	Project     *Project    `json:"project,omitempty"`
	Status      *Status     `json:"status,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Assignee    *User       `json:"assignee,omitempty"`
	Reporter    *User       `json:"reporter,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
}

// IssueType is a Jira issue type.
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// Project is a Jira project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
	Self string `json:"self"`
}

// Status is a Jira issue status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Priority is a Jira priority.
type Priority struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
	Self         string `json:"self"`
}

// Comment is a Jira issue comment.
type Comment struct {
	ID      string      `json:"id"`
	Self    string      `json:"self"`
	Body    interface{} `json:"body"` // string or ADF document
	Author  User        `json:"author"`
	Created time.Time   `json:"created"`
}

// SearchResults is the response of a JQL search.
type SearchResults struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}
