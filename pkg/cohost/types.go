/*
Copyright 2026 The Cohosted Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cohost defines the cohost.org data model and a client for
// the site's API, as it existed when the site shut down.
package cohost // import "cohosted.org/pkg/cohost"

// PostState is the lifecycle state of a post.
type PostState int

const (
	PostStateDraft     PostState = 0
	PostStatePublished PostState = 1
	PostStateDeleted   PostState = 2
)

// Project is a page on cohost: an identity that owns posts and
// comments, addressed by handle.
type Project struct {
	AskSettings             AskSettings   `json:"askSettings" msgpack:"askSettings"`
	AvatarPreviewURL        string        `json:"avatarPreviewURL" msgpack:"avatarPreviewURL"`
	AvatarShape             string        `json:"avatarShape" msgpack:"avatarShape"`
	AvatarURL               string        `json:"avatarURL" msgpack:"avatarURL"`
	ContactCard             []ContactCard `json:"contactCard" msgpack:"contactCard"`
	Dek                     string        `json:"dek" msgpack:"dek"`
	DeleteAfter             *string       `json:"deleteAfter" msgpack:"deleteAfter"`
	Description             string        `json:"description" msgpack:"description"`
	DisplayName             string        `json:"displayName" msgpack:"displayName"`
	Flags                   []string      `json:"flags" msgpack:"flags"`
	FrequentlyUsedTags      []string      `json:"frequentlyUsedTags" msgpack:"frequentlyUsedTags"`
	Handle                  string        `json:"handle" msgpack:"handle"`
	HeaderPreviewURL        *string       `json:"headerPreviewURL" msgpack:"headerPreviewURL"`
	HeaderURL               *string       `json:"headerURL" msgpack:"headerURL"`
	IsSelfProject           *bool         `json:"isSelfProject,omitempty" msgpack:"isSelfProject,omitempty"`
	LoggedOutPostVisibility string        `json:"loggedOutPostVisibility" msgpack:"loggedOutPostVisibility"`
	Privacy                 string        `json:"privacy" msgpack:"privacy"`
	ProjectID               uint64        `json:"projectId" msgpack:"projectId"`
	Pronouns                *string       `json:"pronouns" msgpack:"pronouns"`
	URL                     *string       `json:"url" msgpack:"url"`
}

// Project privacy and visibility values.
const (
	ProjectPrivacyPublic  = "public"
	ProjectPrivacyPrivate = "private"

	LoggedOutVisibilityPublic = "public"
	LoggedOutVisibilityNone   = "none"
)

// AskSettings describes whether and how a project accepts asks.
type AskSettings struct {
	Enabled             bool `json:"enabled" msgpack:"enabled"`
	AllowAnon           bool `json:"allowAnon" msgpack:"allowAnon"`
	RequireLoggedInAnon bool `json:"requireLoggedInAnon" msgpack:"requireLoggedInAnon"`
}

// ContactCard is one row of a project's contact card.
type ContactCard struct {
	Service    string `json:"service" msgpack:"service"`
	Value      string `json:"value" msgpack:"value"`
	Visibility string `json:"visibility" msgpack:"visibility"`
}

// Post is a top-level content item, possibly a share of another post.
// ShareTree lists its ancestors through the share-of relation, earliest
// ancestor first.
type Post struct {
	AstMap                             AstMap    `json:"astMap" msgpack:"-"`
	Blocks                             []Block   `json:"blocks" msgpack:"blocks"`
	CanPublish                         bool      `json:"canPublish" msgpack:"-"`
	CanShare                           bool      `json:"canShare" msgpack:"-"`
	CommentsLocked                     bool      `json:"commentsLocked" msgpack:"commentsLocked"`
	ContributorBlockIncomingOrOutgoing bool      `json:"contributorBlockIncomingOrOutgoing" msgpack:"-"`
	CWs                                []string  `json:"cws" msgpack:"cws"`
	EffectiveAdultContent              bool      `json:"effectiveAdultContent" msgpack:"effectiveAdultContent"`
	Filename                           string    `json:"filename" msgpack:"-"`
	HasAnyContributorMuted             bool      `json:"hasAnyContributorMuted" msgpack:"-"`
	HasCohostPlus                      bool      `json:"hasCohostPlus" msgpack:"hasCohostPlus"`
	Headline                           string    `json:"headline" msgpack:"headline"`
	IsEditor                           bool      `json:"isEditor" msgpack:"-"`
	IsLiked                            bool      `json:"isLiked" msgpack:"-"`
	LimitedVisibilityReason            string    `json:"limitedVisibilityReason" msgpack:"-"`
	NumComments                        uint64    `json:"numComments" msgpack:"numComments"`
	NumSharedComments                  uint64    `json:"numSharedComments" msgpack:"numSharedComments"`
	Pinned                             bool      `json:"pinned" msgpack:"pinned"`
	PlainTextBody                      string    `json:"plainTextBody" msgpack:"plainTextBody"`
	PostEditURL                        string    `json:"postEditUrl" msgpack:"postEditUrl"`
	PostID                             uint64    `json:"postId" msgpack:"-"`
	PostingProject                     Project   `json:"postingProject" msgpack:"-"`
	PublishedAt                        *string   `json:"publishedAt" msgpack:"-"` // ISO 8601; nil for drafts
	RelatedProjects                    []Project `json:"relatedProjects" msgpack:"-"`
	ResponseToAskID                    *string   `json:"responseToAskId" msgpack:"-"`
	ShareOfPostID                      *uint64   `json:"shareOfPostId" msgpack:"-"`
	ShareTree                          []*Post   `json:"shareTree" msgpack:"-"`
	SharesLocked                       bool      `json:"sharesLocked" msgpack:"sharesLocked"`
	SinglePostPageURL                  string    `json:"singlePostPageUrl" msgpack:"singlePostPageUrl"`
	State                              PostState `json:"state" msgpack:"-"`
	Tags                               []string  `json:"tags" msgpack:"-"`
	TransparentShareOfPostID           *uint64   `json:"transparentShareOfPostId" msgpack:"-"`
}

// AstMap is the pre-rendered AST span index cohost shipped alongside
// posts. The archive does not use it, but it is part of the wire shape.
type AstMap struct {
	ReadMoreIndex *uint64      `json:"readMoreIndex"`
	Spans         []AstMapSpan `json:"spans"`
}

type AstMapSpan struct {
	StartIndex uint64 `json:"startIndex"`
	EndIndex   uint64 `json:"endIndex"`
	AST        string `json:"ast"` // JSON string
}

// Block content types.
const (
	BlockTypeAsk           = "ask"
	BlockTypeAttachment    = "attachment"
	BlockTypeAttachmentRow = "attachment-row"
	BlockTypeMarkdown      = "markdown"
)

// Block is one element of a post's block list. Exactly one of Ask,
// Attachment, Attachments, or Markdown is set, according to Type.
type Block struct {
	Type        string              `json:"type" msgpack:"type"`
	Ask         *Ask                `json:"ask,omitempty" msgpack:"ask,omitempty"`
	Attachment  *Attachment         `json:"attachment,omitempty" msgpack:"attachment,omitempty"`
	Attachments []AttachmentWrapper `json:"attachments,omitempty" msgpack:"attachments,omitempty"`
	Markdown    *Markdown           `json:"markdown,omitempty" msgpack:"markdown,omitempty"`
}

// Ask is a question sent to a project, prepended to the answering post.
type Ask struct {
	Anon          bool        `json:"anon" msgpack:"anon"`
	LoggedIn      bool        `json:"loggedIn" msgpack:"loggedIn"`
	AskingProject *AskProject `json:"askingProject" msgpack:"askingProject"`
	AskID         string      `json:"askId" msgpack:"askId"`
	Content       string      `json:"content" msgpack:"content"`
	SentAt        string      `json:"sentAt" msgpack:"sentAt"` // ISO 8601
}

// AskProject is the slimmed-down project shape attached to asks.
type AskProject struct {
	ProjectID        uint64   `json:"projectId" msgpack:"projectId"`
	Handle           string   `json:"handle" msgpack:"handle"`
	AvatarURL        string   `json:"avatarURL" msgpack:"avatarURL"`
	AvatarPreviewURL string   `json:"avatarPreviewURL" msgpack:"avatarPreviewURL"`
	Privacy          string   `json:"privacy" msgpack:"privacy"`
	Flags            []string `json:"flags" msgpack:"flags"`
	AvatarShape      string   `json:"avatarShape" msgpack:"avatarShape"`
	DisplayName      string   `json:"displayName" msgpack:"displayName"`
}

// Markdown is a markdown block.
type Markdown struct {
	Content string `json:"content" msgpack:"content"`
}

// AttachmentWrapper wraps attachments inside an attachment-row block.
type AttachmentWrapper struct {
	Attachment Attachment `json:"attachment" msgpack:"attachment"`
}

// Attachment kinds.
const (
	AttachmentKindImage = "image"
	AttachmentKindAudio = "audio"
)

// Attachment is an uploaded file in a post: an image or an audio track.
type Attachment struct {
	Kind         string  `json:"kind" msgpack:"kind"`
	AltText      *string `json:"altText,omitempty" msgpack:"altText,omitempty"`
	AttachmentID *string `json:"attachmentId,omitempty" msgpack:"attachmentId,omitempty"`
	FileURL      string  `json:"fileURL" msgpack:"fileURL"`
	PreviewURL   string  `json:"previewURL" msgpack:"previewURL"`
	Width        *uint64 `json:"width,omitempty" msgpack:"width,omitempty"`
	Height       *uint64 `json:"height,omitempty" msgpack:"height,omitempty"`
	Artist       *string `json:"artist,omitempty" msgpack:"artist,omitempty"`
	Title        *string `json:"title,omitempty" msgpack:"title,omitempty"`
}

// Comment permission values.
const (
	PermissionAllowed    = "allowed"
	PermissionNotAllowed = "not-allowed"
	PermissionLogInFirst = "log-in-first"
	PermissionBlocked    = "blocked"
)

// Comment is one comment on a post, together with its reply subtree.
type Comment struct {
	Poster      *Project     `json:"poster"`
	Comment     InnerComment `json:"comment"`
	CanEdit     string       `json:"canEdit"`
	CanHide     string       `json:"canHide"`
	CanInteract string       `json:"canInteract"`
}

// InnerComment carries the comment body and reply tree.
type InnerComment struct {
	Body          string     `json:"body"`
	CommentID     string     `json:"commentId"`
	Children      []*Comment `json:"children"`
	Deleted       bool       `json:"deleted"`
	HasCohostPlus bool       `json:"hasCohostPlus"`
	Hidden        bool       `json:"hidden"`
	InReplyTo     *string    `json:"inReplyTo"`
	PostID        uint64     `json:"postId"`
	PostedAtISO   string     `json:"postedAtISO"`
}

// LoggedIn is the login.loggedIn projection of the current session.
type LoggedIn struct {
	Activated           bool    `json:"activated"`
	DeleteAfter         *string `json:"deleteAfter"`
	Email               string  `json:"email"`
	EmailVerified       bool    `json:"emailVerified"`
	EmailVerifyCanceled bool    `json:"emailVerifyCanceled"`
	LoggedIn            bool    `json:"loggedIn"`
	ModMode             bool    `json:"modMode"`
	ProjectID           uint64  `json:"projectId"`
	ReadOnly            bool    `json:"readOnly"`
	TwoFactorActive     bool    `json:"twoFactorActive"`
	UserID              uint64  `json:"userId"`
}

// SinglePost is the posts.singlePost result: a post plus the comment
// trees for it and every post in its share tree, keyed by post ID.
type SinglePost struct {
	Post     Post                  `json:"post"`
	Comments map[uint64][]*Comment `json:"comments"`
}

// PaginationMode describes a feed page's cursor state.
type PaginationMode struct {
	CurrentSkip        uint64 `json:"currentSkip"`
	IdealPageStride    uint64 `json:"idealPageStride"`
	Mode               string `json:"mode"`
	MorePagesBackward  bool   `json:"morePagesBackward"`
	MorePagesForward   bool   `json:"morePagesForward"`
	PageURLFactoryName string `json:"pageUrlFactoryName"`
	RefTimestamp       uint64 `json:"refTimestamp"`
}

// PostsFeed is a page of the liked-posts feed.
type PostsFeed struct {
	HighlightedTags []string       `json:"highlightedTags"`
	NoPostsStringID string         `json:"noPostsStringId"`
	PaginationMode  PaginationMode `json:"paginationMode"`
	Posts           []*Post        `json:"posts"`
}

// Tag relationship values.
const (
	TagRelationshipRelated = "related"
	TagRelationshipSynonym = "synonym"
)

// RelatedTagEntry is one synonym or related tag returned on a tag feed.
type RelatedTagEntry struct {
	TagID        string `json:"tagId"`
	Content      string `json:"content"`
	Relationship string `json:"relationship"`
}

// TaggedPostsFeed is a page of a tag feed.
type TaggedPostsFeed struct {
	NoPostsStringID        string            `json:"noPostsStringId"`
	PaginationMode         PaginationMode    `json:"paginationMode"`
	Posts                  []*Post           `json:"posts"`
	SynonymsAndRelatedTags []RelatedTagEntry `json:"synonymsAndRelatedTags"`
	TagName                string            `json:"tagName"`
	Show18PlusPosts        bool              `json:"show18PlusPosts"`
}

// ProfilePosts is the posts.profilePosts result.
type ProfilePosts struct {
	Pagination ProfilePostsPagination `json:"pagination"`
	Posts      []*Post                `json:"posts"`
}

// ProfilePostsPagination is returned alongside profile posts. Its
// morePagesForward field is not trustworthy; callers page until empty.
type ProfilePostsPagination struct {
	CurrentPage      uint64  `json:"currentPage"`
	MorePagesForward bool    `json:"morePagesForward"`
	NextPage         *uint64 `json:"nextPage"`
	PreviousPage     *uint64 `json:"previousPage"`
}

// ListEditedProjects is the projects.listEditedProjects result.
type ListEditedProjects struct {
	Projects []Project `json:"projects"`
}

// FollowedFeedQuery is one page of projects.followedFeed.query.
type FollowedFeedQuery struct {
	NextCursor *uint64               `json:"nextCursor"`
	Projects   []FollowedFeedProject `json:"projects"`
}

// FollowedFeedProject is one followed project in the followed feed.
type FollowedFeedProject struct {
	Project       Project `json:"project"`
	LatestPost    *Post   `json:"latestPost"`
	ProjectPinned bool    `json:"projectPinned"`
}
