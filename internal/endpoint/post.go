package endpoint

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"uchat/internal/domain"
)

type Chat struct {
	Headline *domain.Headline `json:"headline"`
	Message  domain.Message   `json:"message"`
}

// ImageKind holds exactly one of a data URL sent by a client, a stored image
// ID, or a public URL returned to clients.
type ImageKind struct {
	DataURL *string
	ID      *domain.ImageID
	URL     *string
}

func ImageFromDataURL(s string) ImageKind    { return ImageKind{DataURL: &s} }
func ImageFromID(id domain.ImageID) ImageKind { return ImageKind{ID: &id} }
func ImageFromURL(s string) ImageKind        { return ImageKind{URL: &s} }

func (k ImageKind) MarshalJSON() ([]byte, error) {
	switch {
	case k.DataURL != nil:
		return encodeTagged("DataUrl", *k.DataURL)
	case k.ID != nil:
		return encodeTagged("Id", *k.ID)
	case k.URL != nil:
		return encodeTagged("Url", *k.URL)
	}
	return nil, fmt.Errorf("%w: empty image kind", ErrVariant)
}

func (k *ImageKind) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return err
	}
	var out ImageKind
	switch tag {
	case "DataUrl":
		err = json.Unmarshal(payload, &out.DataURL)
	case "Id":
		err = json.Unmarshal(payload, &out.ID)
	case "Url":
		err = json.Unmarshal(payload, &out.URL)
	default:
		return fmt.Errorf("%w: image kind %q", ErrVariant, tag)
	}
	if err != nil {
		return err
	}
	if out.DataURL == nil && out.ID == nil && out.URL == nil {
		return fmt.Errorf("%w: image kind %q is null", ErrVariant, tag)
	}
	*k = out
	return nil
}

type Image struct {
	Kind    ImageKind       `json:"kind"`
	Caption *domain.Caption `json:"caption"`
}

type PollChoice struct {
	ID          domain.PollChoiceID          `json:"id"`
	NumVotes    int64                        `json:"num_votes"`
	Description domain.PollChoiceDescription `json:"description"`
}

type Poll struct {
	Headline domain.PollHeadline  `json:"headline"`
	Choices  []PollChoice         `json:"choices"`
	Voted    *domain.PollChoiceID `json:"voted"`
}

// Content holds exactly one kind of post body.
type Content struct {
	Chat  *Chat
	Image *Image
	Poll  *Poll
}

// Kind names the variant, "Chat", "Image" or "Poll".
func (c Content) Kind() string {
	switch {
	case c.Chat != nil:
		return "Chat"
	case c.Image != nil:
		return "Image"
	case c.Poll != nil:
		return "Poll"
	}
	return ""
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.Chat != nil:
		return encodeTagged("Chat", c.Chat)
	case c.Image != nil:
		return encodeTagged("Image", c.Image)
	case c.Poll != nil:
		return encodeTagged("Poll", c.Poll)
	}
	return nil, fmt.Errorf("%w: empty content", ErrVariant)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return err
	}
	var out Content
	switch tag {
	case "Chat":
		err = json.Unmarshal(payload, &out.Chat)
	case "Image":
		err = json.Unmarshal(payload, &out.Image)
	case "Poll":
		err = json.Unmarshal(payload, &out.Poll)
	default:
		return fmt.Errorf("%w: content %q", ErrVariant, tag)
	}
	if err != nil {
		return err
	}
	if out.Kind() == "" {
		return fmt.Errorf("%w: content %q is null", ErrVariant, tag)
	}
	*c = out
	return nil
}

type NewPostOptions struct {
	ReplyTo         *domain.PostID `json:"reply_to"`
	DirectMessageTo *domain.UserID `json:"direct_message_to"`
	TimePosted      time.Time      `json:"time_posted"`
}

// ReplyTo identifies the post being replied to and its author. It is encoded
// as the array [handle, user_id, post_id].
type ReplyTo struct {
	Handle string
	UserID domain.UserID
	PostID domain.PostID
}

func (r ReplyTo) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Handle, r.UserID, r.PostID})
}

func (r *ReplyTo) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("reply_to: expected 3 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &r.Handle); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[1], &r.UserID); err != nil {
		return err
	}
	return json.Unmarshal(parts[2], &r.PostID)
}

type PublicPost struct {
	ID         domain.PostID     `json:"id"`
	ByUser     PublicUserProfile `json:"by_user"`
	Content    Content           `json:"content"`
	TimePosted time.Time         `json:"time_posted"`
	ReplyTo    *ReplyTo          `json:"reply_to"`
	LikeStatus LikeStatus        `json:"like_status"`
	Bookmarked bool              `json:"bookmarked"`
	Boosted    bool              `json:"boosted"`
	Likes      int64             `json:"likes"`
	Dislikes   int64             `json:"dislikes"`
	Boosts     int64             `json:"boosts"`
}

type NewPost struct {
	Content Content        `json:"content"`
	Options NewPostOptions `json:"options"`
}

type NewPostOk struct {
	PostID domain.PostID `json:"post_id"`
}

type Bookmark struct {
	PostID domain.PostID  `json:"post_id"`
	Action BookmarkAction `json:"action"`
}

type BookmarkOk struct {
	Status BookmarkAction `json:"status"`
}

type Boost struct {
	PostID domain.PostID `json:"post_id"`
	Action BoostAction   `json:"action"`
}

type BoostOk struct {
	Status BoostAction `json:"status"`
}

type React struct {
	PostID     domain.PostID `json:"post_id"`
	LikeStatus LikeStatus    `json:"like_status"`
}

type ReactOk struct {
	LikeStatus LikeStatus `json:"like_status"`
	Likes      int64      `json:"likes"`
	Dislikes   int64      `json:"dislikes"`
}

type Vote struct {
	PostID   domain.PostID       `json:"post_id"`
	ChoiceID domain.PollChoiceID `json:"choice_id"`
}

type VoteOk struct {
	Cast VoteCast `json:"cast"`
}

type TrendingPosts struct{}

type TrendingPostsOk struct {
	Posts []PublicPost `json:"posts"`
}

type HomePosts struct{}

type HomePostsOk struct {
	Posts []PublicPost `json:"posts"`
}

type LikedPosts struct{}

type LikedPostsOk struct {
	Posts []PublicPost `json:"posts"`
}

type BookmarkedPosts struct{}

type BookmarkedPostsOk struct {
	Posts []PublicPost `json:"posts"`
}
