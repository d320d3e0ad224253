// Package sourcehost grants repository access on the source-hosting provider.
package sourcehost

import (
	"context"
	"net/http"

	"github.com/google/go-github/v62/github"
	"github.com/pkg/errors"
)

// PermissionRead is the permission granted to buyers. The provider calls the
// same level "pull" when inviting.
const PermissionRead = "read"

type Client interface {
	AddCollaborator(ctx context.Context, owner, repo, username string) error
	PermissionLevel(ctx context.Context, owner, repo, username string) (string, error)
}

type GitHubClient struct {
	client *github.Client
}

func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{client: github.NewClient(nil).WithAuthToken(token)}
}

func NewGitHubClientWith(client *github.Client) *GitHubClient {
	return &GitHubClient{client: client}
}

func (c *GitHubClient) AddCollaborator(ctx context.Context, owner, repo, username string) error {
	_, _, err := c.client.Repositories.AddCollaborator(ctx, owner, repo, username, &github.RepositoryAddCollaboratorOptions{
		Permission: "pull",
	})
	if err != nil {
		return errors.Wrapf(err, "add collaborator %s to %s/%s", username, owner, repo)
	}
	return nil
}

// PermissionLevel returns "none" when the user has no access to the repository.
func (c *GitHubClient) PermissionLevel(ctx context.Context, owner, repo, username string) (string, error) {
	level, resp, err := c.client.Repositories.GetPermissionLevel(ctx, owner, repo, username)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "none", nil
		}
		return "", errors.Wrapf(err, "get permission of %s on %s/%s", username, owner, repo)
	}
	return level.GetPermission(), nil
}
