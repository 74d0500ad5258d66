package alist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/alist-sync/internal/transport"
)

// obj mirrors the object shape returned by /api/fs/get and /api/fs/list.
type obj struct {
	Modified time.Time `json:"modified"`
	Name     string    `json:"name"`
	Sign     string    `json:"sign"`
	RawURL   string    `json:"raw_url"`
	Provider string    `json:"provider"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
}

func (o obj) entry(p string) transport.Entry {
	e := transport.Entry{
		Path:     p,
		Name:     o.Name,
		Modified: o.Modified,
		Sign:     o.Sign,
		IsDir:    o.IsDir,
	}
	if !o.IsDir {
		e.Size = o.Size
	}
	if e.Name == "" {
		e.Name = path.Base(p)
	}
	return e
}

type listResp struct {
	Content []obj `json:"content"`
	Total   int64 `json:"total"`
}

const listPageSize = 500

func clean(p string) string { return path.Clean("/" + p) }

func (c *Client) get(ctx context.Context, p string) (obj, error) {
	var o obj
	err := c.do(ctx, http.MethodPost, "/api/fs/get", map[string]any{"path": clean(p), "password": ""}, &o)
	if err != nil {
		return obj{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return o, nil
}

func (c *Client) Stat(ctx context.Context, p string) (transport.Entry, error) {
	o, err := c.get(ctx, p)
	if err != nil {
		return transport.Entry{}, err
	}
	return o.entry(clean(p)), nil
}

// List pages through /api/fs/list with refresh so recently written paths
// are visible.
func (c *Client) List(ctx context.Context, p string) ([]transport.Entry, error) {
	dir := clean(p)
	var entries []transport.Entry
	for page := 1; ; page++ {
		var lr listResp
		body := map[string]any{
			"path":     dir,
			"password": "",
			"page":     page,
			"per_page": listPageSize,
			"refresh":  page == 1,
		}
		if err := c.do(ctx, http.MethodPost, "/api/fs/list", body, &lr); err != nil {
			return nil, fmt.Errorf("list %s: %w", p, err)
		}
		for _, o := range lr.Content {
			entries = append(entries, o.entry(path.Join(dir, o.Name)))
		}
		if len(lr.Content) < listPageSize || int64(len(entries)) >= lr.Total {
			return entries, nil
		}
	}
}

// Open downloads through the object's raw_url, falling back to the signed
// /d/ proxy route.
func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	o, err := c.get(ctx, p)
	if err != nil {
		return nil, err
	}
	if o.IsDir {
		return nil, fmt.Errorf("open %s: is a directory", p)
	}

	link := o.RawURL
	if link == "" {
		link = c.http.BaseURL + "/d" + escapePath(clean(p))
		if o.Sign != "" {
			link += "?sign=" + url.QueryEscape(o.Sign)
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(link)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		body.Close()
		return nil, fmt.Errorf("download %s: http %d", p, resp.StatusCode())
	}
	return body, nil
}

func (c *Client) Put(ctx context.Context, p string, r io.Reader, size int64, modified time.Time) error {
	tok, err := c.currentToken(ctx)
	if err != nil {
		return err
	}
	req := c.http.R().
		SetContext(ctx).
		SetHeader("File-Path", url.PathEscape(clean(p))).
		SetHeader("As-Task", "false").
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(r)
	if tok != "" {
		req.SetHeader("Authorization", tok)
	}
	if size >= 0 {
		req.SetHeader("Content-Length", strconv.FormatInt(size, 10))
	}
	if !modified.IsZero() {
		req.SetHeader("Last-Modified", strconv.FormatInt(modified.UnixMilli(), 10))
	}
	if err := c.send(req, http.MethodPut, "/api/fs/put", nil); err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

func (c *Client) Mkdir(ctx context.Context, p string) error {
	if err := c.do(ctx, http.MethodPost, "/api/fs/mkdir", map[string]string{"path": clean(p)}, nil); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

// Remove deletes p. The remove endpoint succeeds silently for missing names,
// so existence is checked first to report transport.ErrNotFound.
func (c *Client) Remove(ctx context.Context, p string) error {
	if _, err := c.get(ctx, p); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	p = clean(p)
	body := map[string]any{"dir": path.Dir(p), "names": []string{path.Base(p)}}
	if err := c.do(ctx, http.MethodPost, "/api/fs/remove", body, nil); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Rename moves from to the absolute path to. The API only renames in place
// and moves by name, so a cross-directory rename is a rename followed by a
// move.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)
	srcDir, dstDir := path.Dir(from), path.Dir(to)
	name := path.Base(from)

	if path.Base(to) != name {
		body := map[string]string{"path": from, "name": path.Base(to)}
		if err := c.do(ctx, http.MethodPost, "/api/fs/rename", body, nil); err != nil {
			return fmt.Errorf("rename %s: %w", from, err)
		}
		name = path.Base(to)
	}
	if srcDir == dstDir {
		return nil
	}

	if err := c.Mkdir(ctx, dstDir); err != nil {
		return err
	}
	body := map[string]any{"src_dir": srcDir, "dst_dir": dstDir, "names": []string{name}}
	if err := c.do(ctx, http.MethodPost, "/api/fs/move", body, nil); err != nil {
		return fmt.Errorf("move %s to %s: %w", path.Join(srcDir, name), dstDir, err)
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
