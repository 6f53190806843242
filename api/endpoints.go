package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mqy/minichat/wire"
)

// Login exchanges credentials for a bearer token and remembers the token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResp, error) {
	var out AuthResp
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResp, error) {
	var out AuthResp
	in := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user owning the token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/user/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, uid string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/user/profile/"+url.PathEscape(uid), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Follow(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodPut, "/user/"+url.PathEscape(uid)+"/follow", nil, nil, nil)
}

func (c *Client) Unfollow(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodPut, "/user/"+url.PathEscape(uid)+"/unfollow", nil, nil, nil)
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var out []User
	q := url.Values{"query": []string{query}}
	if err := c.do(ctx, http.MethodGet, "/user/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Suggestions(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/user/suggestions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Posts(ctx context.Context) ([]Post, error) {
	var out []Post
	if err := c.do(ctx, http.MethodGet, "/posts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MyPosts(ctx context.Context) ([]Post, error) {
	var out []Post
	if err := c.do(ctx, http.MethodGet, "/posts/myposts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Post(ctx context.Context, id string) (*Post, error) {
	var out Post
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost publishes a post. image may be nil.
func (c *Client) CreatePost(ctx context.Context, in *PostInput, imageName string, image io.Reader) (*Post, error) {
	fields := map[string]string{"content": in.Content}
	if in.Title != "" {
		fields["title"] = in.Title
	}
	var file *formFile
	if image != nil {
		file = &formFile{field: "image", name: imageName, r: image}
	}
	var out Post
	if err := c.upload(ctx, "/posts", fields, file, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, id string, in *PostInput) (*Post, error) {
	var out Post
	if err := c.do(ctx, http.MethodPut, "/posts/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) LikePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/posts/"+url.PathEscape(id)+"/like", nil, nil, nil)
}

func (c *Client) CommentPost(ctx context.Context, id, text string) error {
	in := map[string]string{"text": text}
	return c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/comment", nil, in, nil)
}

// History returns the conversation with peer, oldest first. The server may
// answer with a bare array or with `{"messages": [...]}`.
func (c *Client) History(ctx context.Context, peer string) ([]wire.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/messages/history/"+url.PathEscape(peer), nil, nil, &raw); err != nil {
		return nil, err
	}
	var list []wire.Message
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Messages []wire.Message `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Messages, nil
}

func (c *Client) RecentChats(ctx context.Context) ([]RecentChat, error) {
	var out []RecentChat
	if err := c.do(ctx, http.MethodGet, "/messages/recent", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type modeReq struct {
	Mode string `json:"mode"`
}

// DeleteMessage deletes one message for `me` or `everyone`.
func (c *Client) DeleteMessage(ctx context.Context, messageID, mode string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, &modeReq{Mode: mode}, nil)
}

// ClearChat clears the conversation with peer for `me` or `everyone`.
func (c *Client) ClearChat(ctx context.Context, peer, mode string) error {
	return c.do(ctx, http.MethodDelete, "/messages/clear/"+url.PathEscape(peer), nil, &modeReq{Mode: mode}, nil)
}

// SendFile uploads a file attachment to peer. The message arrives as `new_message`.
func (c *Client) SendFile(ctx context.Context, peer, filename string, r io.Reader) error {
	return c.upload(ctx, "/messages/file/"+url.PathEscape(peer), nil, &formFile{field: "file", name: filename, r: r}, nil)
}

// SendVoice uploads a voice note of the given duration, in seconds.
func (c *Client) SendVoice(ctx context.Context, peer string, r io.Reader, seconds int) error {
	fields := map[string]string{"duration": strconv.Itoa(seconds)}
	return c.upload(ctx, "/messages/voice/"+url.PathEscape(peer), fields, &formFile{field: "audio", name: "voice.webm", r: r}, nil)
}

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnreadNotifications(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ReadNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

func (c *Client) ReadAllNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil, nil)
}
