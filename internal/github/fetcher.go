package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Repo identifies a directory of a GitHub repository at an optional ref.
type Repo struct {
	Owner    string
	Name     string
	BasePath string
	Ref      string // Branch, tag or commit; empty for the default branch
}

// ParseRepo parses "owner/repo[/path...][@ref]".
func ParseRepo(s string) (Repo, error) {
	var r Repo
	repoPath, ref, _ := strings.Cut(strings.TrimSpace(s), "@")
	r.Ref = ref

	parts := strings.SplitN(strings.Trim(repoPath, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return r, fmt.Errorf("invalid repository %q, want owner/repo[/path][@ref]", s)
	}
	r.Owner, r.Name = parts[0], parts[1]
	if len(parts) == 3 {
		r.BasePath = strings.Trim(parts[2], "/")
	}
	return r, nil
}

func (r Repo) String() string {
	s := r.Owner + "/" + r.Name
	if r.BasePath != "" {
		s += "/" + r.BasePath
	}
	if r.Ref != "" {
		s += "@" + r.Ref
	}
	return s
}

// FetchedDoc represents a document fetched from GitHub
type FetchedDoc struct {
	Path    string // Relative path within the base directory
	Content string // Full file content
	SHA     string // File's Git blob SHA
	URL     string // GitHub raw URL
}

// Fetcher handles fetching documents from a GitHub repository directory
type Fetcher struct {
	client *Client
	repo   Repo
}

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client, repo Repo) *Fetcher {
	return &Fetcher{client: client, repo: repo}
}

// IsDocument reports whether a repository file is ingested by seeding.
func IsDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}

func (f *Fetcher) contentOptions() *github.RepositoryContentGetOptions {
	if f.repo.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.repo.Ref}
}

// ListDocs recursively lists all markdown and text files under the base path
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.repo.BasePath, "")
}

// listDocsRecursive recursively traverses directories to find documents
func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(
		ctx,
		f.repo.Owner,
		f.repo.Name,
		fullPath,
		f.contentOptions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if IsDocument(*item.Name) {
				docs = append(docs, itemRelPath)
			}

		case "dir":
			itemFullPath := path.Join(fullPath, *item.Name)
			subDocs, err := f.listDocsRecursive(ctx, itemFullPath, itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of a specific file
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.repo.BasePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx,
		f.repo.Owner,
		f.repo.Name,
		fullPath,
		f.contentOptions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}

	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	ref := f.repo.Ref
	if ref == "" {
		ref = "HEAD"
	}
	rawURL := fmt.Sprintf(
		"https://raw.githubusercontent.com/%s/%s/%s/%s",
		f.repo.Owner,
		f.repo.Name,
		ref,
		fullPath,
	)

	return &FetchedDoc{
		Path:    relativePath,
		Content: string(content),
		SHA:     fileContent.GetSHA(),
		URL:     rawURL,
	}, nil
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting the base path
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(
		ctx,
		f.repo.Owner,
		f.repo.Name,
		&github.CommitsListOptions{
			SHA:  f.repo.Ref,
			Path: f.repo.BasePath,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.repo.BasePath)
	}

	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}
