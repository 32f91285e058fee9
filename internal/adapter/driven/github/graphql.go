package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

const ownerAndViewerQuery = `query($owner: String!, $repo: String!) {
	repository(owner: $owner, name: $repo) {
		id
		owner { __typename id login }
	}
	viewer { id login }
}`

const ownerProjectsQuery = `query($ownerId: ID!) {
	node(id: $ownerId) {
		... on Organization { projectsV2(first: 100) { nodes { id title number } } }
		... on User { projectsV2(first: 100) { nodes { id title number } } }
	}
}`

const createProjectMutation = `mutation($ownerId: ID!, $title: String!) {
	createProjectV2(input: {ownerId: $ownerId, title: $title}) {
		projectV2 { id number title }
	}
}`

const projectMetaQuery = `query($projectId: ID!) {
	node(id: $projectId) {
		... on ProjectV2 {
			number
			title
			owner {
				__typename
				... on Organization { login }
				... on User { login }
			}
		}
	}
}`

const projectFieldsQuery = `query($projectId: ID!) {
	node(id: $projectId) {
		... on ProjectV2 {
			fields(first: 50) {
				nodes {
					__typename
					... on ProjectV2FieldCommon { id name }
					... on ProjectV2SingleSelectField { options { id name } }
				}
			}
		}
	}
}`

const issueNodeIDQuery = `query($owner: String!, $repo: String!, $number: Int!) {
	repository(owner: $owner, name: $repo) {
		issue(number: $number) { id }
	}
}`

const addProjectItemMutation = `mutation($projectId: ID!, $contentId: ID!) {
	addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
		item { id }
	}
}`

const issueProjectItemsQuery = `query($owner: String!, $repo: String!, $number: Int!) {
	repository(owner: $owner, name: $repo) {
		issue(number: $number) {
			id
			projectItems(first: 50) {
				nodes {
					id
					project { id }
					fieldValues(first: 50) {
						nodes {
							__typename
							... on ProjectV2ItemFieldSingleSelectValue {
								name
								optionId
								field {
									__typename
									... on ProjectV2SingleSelectField { name }
								}
							}
						}
					}
				}
			}
		}
	}
}`

const setItemStatusMutation = `mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $optionId: String!) {
	updateProjectV2ItemFieldValue(input: {
		projectId: $projectId,
		itemId: $itemId,
		fieldId: $fieldId,
		value: {singleSelectOptionId: $optionId}
	}) {
		projectV2Item { id }
	}
}`

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphqlEnvelope is the top-level shape of every GraphQL response. Errors is
// kept raw so it can be surfaced verbatim.
type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type graphqlErrorEntry struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// errorMessages extracts the messages of a raw "errors" array.
func errorMessages(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var entries []graphqlErrorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []string{string(raw)}
	}
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		msg := e.Message
		if msg == "" {
			msg = e.Type
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// graphqlCall posts query with variables and decodes the "data" member into
// out. HTTP-level and secondary-rate-limit failures are retried; any other
// GraphQL error is returned as *model.GraphQLError.
func (c *Client) graphqlCall(ctx context.Context, op, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, nil)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	c.logger.Debug("github graphql request", "op", op, "headers", RedactHeaders(req.Header))

	var (
		env      graphqlEnvelope
		status   int
		respBody []byte
	)
	res, err := c.retrier.Run(ctx, "graphql "+op, func(ctx context.Context) Outcome {
		resp, buf, err := exchange(ctx, c.graphqlRT, req, payload, c.timeout)
		if err != nil {
			return networkOutcome(ctx, err)
		}
		status, respBody = resp.StatusCode, buf
		if resp.StatusCode != http.StatusOK {
			return classifyResponse(resp.StatusCode, resp.Header, buf)
		}

		env = graphqlEnvelope{}
		if err := json.Unmarshal(buf, &env); err != nil {
			return Outcome{Status: resp.StatusCode, Err: fmt.Errorf("%s: decoding response: %w", op, err)}
		}
		msgs := errorMessages(env.Errors)
		if len(msgs) == 0 {
			return Outcome{Status: resp.StatusCode}
		}

		gqlErr := &model.GraphQLError{Op: op, Messages: msgs, Payload: []byte(env.Errors)}
		return Outcome{
			Retryable: isSecondaryRateLimit(strings.Join(msgs, " ")),
			Status:    resp.StatusCode,
			Err:       gqlErr,
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.Last.Err != nil {
		var gqlErr *model.GraphQLError
		switch {
		case errors.As(res.Last.Err, &gqlErr):
			return gqlErr
		case res.Last.Status == 0 && ctx.Err() != nil:
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case res.Last.Status == 0:
			return &model.TransportError{Op: "graphql " + op, Attempts: res.Attempts, Err: res.Last.Err}
		default:
			return res.Last.Err
		}
	}

	if status != http.StatusOK {
		return &model.HTTPError{Op: "graphql " + op, Status: status, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decoding data: %w", op, err)
	}
	return nil
}

// ResolveOwnerAndViewer returns the node identities of the repository owner
// and of the authenticated viewer.
func (c *Client) ResolveOwnerAndViewer(ctx context.Context, owner, repo string) (*model.OwnerIdentity, error) {
	var data struct {
		Repository *struct {
			ID    string          `json:"id"`
			Owner json.RawMessage `json:"owner"`
		} `json:"repository"`
		Viewer struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"viewer"`
	}
	vars := map[string]any{"owner": owner, "repo": repo}
	if err := c.graphqlCall(ctx, "resolve owner", ownerAndViewerQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, fmt.Errorf("repository %s/%s not found", owner, repo)
	}

	node, err := decodeOwner(data.Repository.Owner)
	if err != nil {
		return nil, fmt.Errorf("decoding owner of %s/%s: %w", owner, repo, err)
	}

	id := &model.OwnerIdentity{ViewerID: data.Viewer.ID, ViewerLogin: data.Viewer.Login}
	switch n := node.(type) {
	case organizationOwner:
		id.OwnerID, id.OwnerLogin, id.OwnerType = n.ID, n.Login, model.OwnerOrganization
	case userOwner:
		id.OwnerID, id.OwnerLogin, id.OwnerType = n.ID, n.Login, model.OwnerUser
	case otherOwner:
		return nil, fmt.Errorf("unsupported owner type %q for %s/%s", n.Typename, owner, repo)
	case nil:
		return nil, fmt.Errorf("repository %s/%s has no owner", owner, repo)
	}
	return id, nil
}

// ListProjects lists the first 100 projects owned by the given account node.
func (c *Client) ListProjects(ctx context.Context, ownerID string) ([]model.ProjectSummary, error) {
	var data struct {
		Node *struct {
			ProjectsV2 struct {
				Nodes []*projectNode `json:"nodes"`
			} `json:"projectsV2"`
		} `json:"node"`
	}
	if err := c.graphqlCall(ctx, "list projects", ownerProjectsQuery, map[string]any{"ownerId": ownerID}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return []model.ProjectSummary{}, nil
	}

	projects := make([]model.ProjectSummary, 0, len(data.Node.ProjectsV2.Nodes))
	for _, p := range data.Node.ProjectsV2.Nodes {
		if p == nil {
			continue
		}
		projects = append(projects, p.summary())
	}
	return projects, nil
}

// CreateProject creates a project owned by the given account node.
func (c *Client) CreateProject(ctx context.Context, ownerID, title string) (*model.ProjectSummary, error) {
	var data struct {
		CreateProjectV2 struct {
			ProjectV2 *projectNode `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	vars := map[string]any{"ownerId": ownerID, "title": title}
	if err := c.graphqlCall(ctx, "create project", createProjectMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.CreateProjectV2.ProjectV2 == nil {
		return nil, fmt.Errorf("create project %q: empty result", title)
	}

	p := data.CreateProjectV2.ProjectV2.summary()
	c.logger.Info("project created", "title", p.Title, "number", p.Number)
	return &p, nil
}

// GetProjectMeta returns the project's number, title and owner.
func (c *Client) GetProjectMeta(ctx context.Context, projectID string) (*model.ProjectMeta, error) {
	var data struct {
		Node *struct {
			Number int             `json:"number"`
			Title  string          `json:"title"`
			Owner  json.RawMessage `json:"owner"`
		} `json:"node"`
	}
	if err := c.graphqlCall(ctx, "project meta", projectMetaQuery, map[string]any{"projectId": projectID}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}

	meta := &model.ProjectMeta{Number: data.Node.Number, Title: data.Node.Title}
	node, err := decodeOwner(data.Node.Owner)
	if err != nil {
		return nil, fmt.Errorf("decoding owner of project %s: %w", projectID, err)
	}
	switch n := node.(type) {
	case organizationOwner:
		meta.OwnerType, meta.OwnerLogin = model.OwnerOrganization, n.Login
	case userOwner:
		meta.OwnerType, meta.OwnerLogin = model.OwnerUser, n.Login
	case otherOwner, nil:
		// Left blank; the URL falls back to the requested owner.
	}
	return meta, nil
}

// GetProjectFields returns the project's field definitions.
func (c *Client) GetProjectFields(ctx context.Context, projectID string) ([]model.ProjectField, error) {
	var data struct {
		Node *struct {
			Fields struct {
				Nodes []json.RawMessage `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	if err := c.graphqlCall(ctx, "project fields", projectFieldsQuery, map[string]any{"projectId": projectID}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}

	fields := make([]model.ProjectField, 0, len(data.Node.Fields.Nodes))
	for _, raw := range data.Node.Fields.Nodes {
		node, err := decodeField(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding field of project %s: %w", projectID, err)
		}
		switch n := node.(type) {
		case nil:
			continue
		case singleSelectField:
			opts := make([]model.FieldOption, 0, len(n.Options))
			for _, o := range n.Options {
				opts = append(opts, model.FieldOption{ID: o.ID, Name: o.Name})
			}
			fields = append(fields, model.ProjectField{ID: n.ID, Name: n.Name, Kind: model.FieldSingleSelect, Options: opts})
		case plainField:
			fields = append(fields, model.ProjectField{ID: n.ID, Name: n.Name, Kind: model.FieldOther})
		}
	}
	return fields, nil
}

// GetIssueNodeID returns the GraphQL node id of an issue.
func (c *Client) GetIssueNodeID(ctx context.Context, owner, repo string, number int) (string, error) {
	var data struct {
		Repository *struct {
			Issue *struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := c.graphqlCall(ctx, "issue node id", issueNodeIDQuery, vars, &data); err != nil {
		return "", err
	}
	if data.Repository == nil || data.Repository.Issue == nil {
		return "", fmt.Errorf("issue %s/%s#%d not found", owner, repo, number)
	}
	return data.Repository.Issue.ID, nil
}

// AddProjectItem adds content to a project and returns the item id. A
// "already" error from GitHub means the item exists; it is reported as an
// empty id with no error.
func (c *Client) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	var data struct {
		AddProjectV2ItemByID struct {
			Item *struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars := map[string]any{"projectId": projectID, "contentId": contentID}
	err := c.graphqlCall(ctx, "add project item", addProjectItemMutation, vars, &data)
	if err != nil {
		var gqlErr *model.GraphQLError
		if errors.As(err, &gqlErr) && mentionsAlready(gqlErr.Messages) {
			c.logger.Debug("project item already present", "project", projectID)
			return "", nil
		}
		return "", err
	}
	if data.AddProjectV2ItemByID.Item == nil {
		return "", nil
	}
	return data.AddProjectV2ItemByID.Item.ID, nil
}

func mentionsAlready(msgs []string) bool {
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m), "already") {
			return true
		}
	}
	return false
}

// GetProjectItem returns the issue's item on the given project together with
// its current Status option name.
func (c *Client) GetProjectItem(ctx context.Context, owner, repo string, number int, projectID string) (model.ProjectMembership, error) {
	var data struct {
		Repository *struct {
			Issue *struct {
				ProjectItems struct {
					Nodes []*struct {
						ID      string `json:"id"`
						Project struct {
							ID string `json:"id"`
						} `json:"project"`
						FieldValues struct {
							Nodes []json.RawMessage `json:"nodes"`
						} `json:"fieldValues"`
					} `json:"nodes"`
				} `json:"projectItems"`
			} `json:"issue"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := c.graphqlCall(ctx, "issue project items", issueProjectItemsQuery, vars, &data); err != nil {
		return model.ProjectMembership{}, err
	}
	if data.Repository == nil || data.Repository.Issue == nil {
		return model.ProjectMembership{}, fmt.Errorf("issue %s/%s#%d not found", owner, repo, number)
	}

	for _, item := range data.Repository.Issue.ProjectItems.Nodes {
		if item == nil || item.Project.ID != projectID {
			continue
		}
		m := model.ProjectMembership{ItemID: item.ID}
		for _, raw := range item.FieldValues.Nodes {
			node, err := decodeFieldValue(raw)
			if err != nil {
				return model.ProjectMembership{}, fmt.Errorf("decoding field value of item %s: %w", item.ID, err)
			}
			switch v := node.(type) {
			case singleSelectValue:
				if v.FieldName == model.StatusFieldName {
					m.Status = v.Name
				}
			case otherFieldValue, nil:
			}
		}
		return m, nil
	}
	return model.ProjectMembership{}, nil
}

// SetItemStatus sets a single-select field value on a project item.
func (c *Client) SetItemStatus(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	vars := map[string]any{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   fieldID,
		"optionId":  optionID,
	}
	return c.graphqlCall(ctx, "set item status", setItemStatusMutation, vars, nil)
}

type projectNode struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Number int    `json:"number"`
}

func (p projectNode) summary() model.ProjectSummary {
	return model.ProjectSummary{ID: p.ID, Number: p.Number, Title: p.Title}
}
