package corpus

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubSource loads a legal corpus maintained as markdown files in a
// GitHub repository. The first path element below basePath is the legal
// category, mirroring DirSource layout.
type GitHubSource struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
}

// NewGitHubSource creates a source for owner/repo rooted at basePath.
// If GITHUB_TOKEN is set the client is authenticated for higher rate
// limits; rate limiting is handled with automatic retry either way.
func NewGitHubSource(owner, repo, basePath string) (*GitHubSource, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	ghClient := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &GitHubSource{
		client:   ghClient,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}, nil
}

// Load lists and fetches every markdown file under basePath.
func (s *GitHubSource) Load(ctx context.Context) ([]Document, error) {
	paths, err := s.listFiles(ctx, s.basePath, "")
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(paths))
	for _, rel := range paths {
		doc, err := s.fetch(ctx, rel)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching the
// corpus directory, recorded in the index manifest for staleness checks.
func (s *GitHubSource) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo,
		&github.CommitsListOptions{
			Path:        s.basePath,
			ListOptions: github.ListOptions{PerPage: 1},
		})
	if err != nil {
		return "", fmt.Errorf("list commits: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	return *commits[0].SHA, nil
}

func (s *GitHubSource) listFiles(ctx context.Context, fullPath, relPath string) ([]string, error) {
	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("get contents of %s: %w", fullPath, err)
	}

	var files []string
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemRel := path.Join(relPath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				files = append(files, itemRel)
			}
		case "dir":
			sub, err := s.listFiles(ctx, path.Join(fullPath, *item.Name), itemRel)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func (s *GitHubSource) fetch(ctx context.Context, rel string) (Document, error) {
	fullPath := path.Join(s.basePath, rel)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return Document{}, fmt.Errorf("get content of %s: %w", fullPath, err)
	}
	if fileContent == nil || fileContent.Content == nil {
		return Document{}, fmt.Errorf("no file content returned for %s", fullPath)
	}

	raw, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return Document{}, fmt.Errorf("decode content of %s: %w", fullPath, err)
	}

	doc, err := NewDocument(rel, categoryFromPath(rel), string(raw))
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}
