package api

import (
	"time"

	"github.com/mqy/minichat/wire"
)

type User struct {
	ID        string   `json:"_id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Avatar    string   `json:"avatar,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	Followers []string `json:"followers,omitempty"`
	Following []string `json:"following,omitempty"`
}

type AuthResp struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user,omitempty"`
}

type Profile struct {
	User  *User  `json:"user"`
	Posts []Post `json:"posts,omitempty"`
}

type Comment struct {
	ID        string       `json:"_id"`
	User      wire.UserRef `json:"user"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Post struct {
	ID        string       `json:"_id"`
	Author    wire.UserRef `json:"author"`
	Title     string       `json:"title,omitempty"`
	Content   string       `json:"content"`
	Image     string       `json:"image,omitempty"`
	Likes     []string     `json:"likes,omitempty"`
	Comments  []Comment    `json:"comments,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type PostInput struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

type Notification struct {
	ID        string       `json:"_id"`
	Type      string       `json:"type"`
	From      wire.UserRef `json:"from,omitempty"`
	Post      string       `json:"post,omitempty"`
	Text      string       `json:"text,omitempty"`
	Read      bool         `json:"read"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RecentChat is one entry of the recent conversations list.
type RecentChat struct {
	User        *User         `json:"user"`
	LastMessage *wire.Message `json:"lastMessage,omitempty"`
	Unread      int           `json:"unread,omitempty"`
}
