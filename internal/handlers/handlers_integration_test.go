//go:build integration

package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/goccy/go-json"

	"uchat/internal/auth"
	"uchat/internal/crypto"
	"uchat/internal/endpoint"
	"uchat/internal/images"
	"uchat/internal/testinfra"
)

type apiClient struct {
	c       *qt.C
	handler http.Handler
	cookies []*http.Cookie
}

func (a *apiClient) call(url string, req, resp any) int {
	a.c.Helper()
	body, err := json.Marshal(req)
	a.c.Assert(err, qt.IsNil)
	r := httptest.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	r.Header.Set("User-Agent", "uchat-integration")
	for _, ck := range a.cookies {
		r.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, r)
	if rec.Code < 300 && resp != nil {
		a.c.Assert(json.Unmarshal(rec.Body.Bytes(), resp), qt.IsNil, qt.Commentf("%s", rec.Body.String()))
	}
	if len(rec.Result().Cookies()) > 0 {
		a.cookies = rec.Result().Cookies()
	}
	return rec.Code
}

func newIntegrationServer(c *qt.C, t *testing.T) http.Handler {
	pool := testinfra.NewPostgres(t)
	keys, err := crypto.GenerateSigningKeys(rand.Reader)
	c.Assert(err, qt.IsNil)
	imgs, err := images.NewStore(t.TempDir(), "http://api.test", 1<<20)
	c.Assert(err, qt.IsNil)
	st := New(PgxPool(pool), auth.NewManager(keys, time.Hour, false), imgs)
	return st.Routes(RouterConfig{LoginRateLimit: 100})
}

func signUp(c *qt.C, h http.Handler, name string) (*apiClient, endpoint.CreateUserOk) {
	client := &apiClient{c: c, handler: h}
	var ok endpoint.CreateUserOk
	code := client.call(endpoint.CreateUserURL, map[string]string{"username": name, "password": "password123"}, &ok)
	c.Assert(code, qt.Equals, http.StatusCreated)
	c.Assert(client.cookies, qt.HasLen, 2)
	return client, ok
}

func chatPost(msg string) map[string]any {
	return map[string]any{
		"content": map[string]any{"Chat": map[string]any{"headline": nil, "message": msg}},
		"options": map[string]any{"time_posted": time.Now().Add(-time.Minute)},
	}
}

func TestAccountFlow(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	c := qt.New(t)
	h := newIntegrationServer(c, t)

	alice, created := signUp(c, h, "alice")
	c.Assert(created.Username.String(), qt.Equals, "alice")

	anon := &apiClient{c: c, handler: h}
	var failed endpoint.RequestFailed
	code := anon.call(endpoint.CreateUserURL, map[string]string{"username": "alice", "password": "password123"}, nil)
	c.Assert(code, qt.Equals, http.StatusConflict)

	code = anon.call(endpoint.LoginURL, map[string]string{"username": "alice", "password": "wrong-password"}, &failed)
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	code = anon.call(endpoint.LoginURL, map[string]string{"username": "nobody", "password": "password123"}, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	var loggedIn endpoint.LoginOk
	code = anon.call(endpoint.LoginURL, map[string]string{"username": "alice", "password": "password123"}, &loggedIn)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(loggedIn.UserID, qt.Equals, created.UserID)
	c.Assert(loggedIn.SessionID, qt.Equals, created.SessionID, qt.Commentf("same client reuses its session row"))

	var updated endpoint.UpdateProfileOk
	code = alice.call(endpoint.UpdateProfileURL, map[string]any{
		"display_name":  map[string]string{"Change": "Alice"},
		"email":         map[string]string{"Change": "alice@example.com"},
		"password":      "NoChange",
		"profile_image": "NoChange",
	}, &updated)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(updated.ProfileImage, qt.IsNil)

	var me endpoint.GetMyProfileOk
	c.Assert(alice.call(endpoint.GetMyProfileURL, struct{}{}, &me), qt.Equals, http.StatusOK)
	c.Assert(*me.DisplayName, qt.Equals, "Alice")
	c.Assert(*me.Email, qt.Equals, "alice@example.com")
	c.Assert(me.ProfileImage, qt.IsNil)

	avatar := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\navatar"))
	updated = endpoint.UpdateProfileOk{}
	code = alice.call(endpoint.UpdateProfileURL, map[string]any{"profile_image": map[string]string{"Change": avatar}}, &updated)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(updated.ProfileImage, qt.IsNotNil)
	avatarURL := *updated.ProfileImage
	c.Assert(avatarURL, qt.Matches, `http://api\.test/usercontent/img/[0-9a-f-]{36}`)

	// Updating other fields still reports the current image.
	updated = endpoint.UpdateProfileOk{}
	code = alice.call(endpoint.UpdateProfileURL, map[string]any{"email": "SetNull"}, &updated)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(updated.ProfileImage, qt.IsNotNil)
	c.Assert(*updated.ProfileImage, qt.Equals, avatarURL)

	c.Assert(alice.call(endpoint.GetMyProfileURL, struct{}{}, &me), qt.Equals, http.StatusOK)
	c.Assert(me.Email, qt.IsNil)
	c.Assert(*me.ProfileImage, qt.Equals, avatarURL)

	c.Assert(alice.call(endpoint.LogoutURL, struct{}{}, nil), qt.Equals, http.StatusOK)
	c.Assert(alice.call(endpoint.GetMyProfileURL, struct{}{}, nil), qt.Equals, http.StatusUnauthorized)
}

func TestPostFlow(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	c := qt.New(t)
	h := newIntegrationServer(c, t)

	alice, aliceOk := signUp(c, h, "alice")
	bob, _ := signUp(c, h, "bob")

	var posted endpoint.NewPostOk
	c.Assert(alice.call(endpoint.NewPostURL, chatPost("hello"), &posted), qt.Equals, http.StatusOK)

	var trending endpoint.TrendingPostsOk
	c.Assert(bob.call(endpoint.TrendingPostsURL, struct{}{}, &trending), qt.Equals, http.StatusOK)
	c.Assert(trending.Posts, qt.HasLen, 1)
	c.Assert(trending.Posts[0].ID, qt.Equals, posted.PostID)
	c.Assert(trending.Posts[0].ByUser.Handle, qt.Equals, "alice")
	c.Assert(trending.Posts[0].Content.Chat.Message.String(), qt.Equals, "hello")

	var reacted endpoint.ReactOk
	code := bob.call(endpoint.ReactURL, map[string]any{"post_id": posted.PostID, "like_status": "Like"}, &reacted)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(reacted.Likes, qt.Equals, int64(1))

	var bookmarked endpoint.BookmarkOk
	code = bob.call(endpoint.BookmarkURL, map[string]any{"post_id": posted.PostID, "action": "Add"}, &bookmarked)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(bookmarked.Status, qt.Equals, endpoint.BookmarkAdd)

	var saved endpoint.BookmarkedPostsOk
	c.Assert(bob.call(endpoint.BookmarkedPostsURL, struct{}{}, &saved), qt.Equals, http.StatusOK)
	c.Assert(saved.Posts, qt.HasLen, 1)
	c.Assert(saved.Posts[0].Bookmarked, qt.IsTrue)
	c.Assert(saved.Posts[0].LikeStatus, qt.Equals, endpoint.Like)

	var liked endpoint.LikedPostsOk
	c.Assert(bob.call(endpoint.LikedPostsURL, struct{}{}, &liked), qt.Equals, http.StatusOK)
	c.Assert(liked.Posts, qt.HasLen, 1)

	var followed endpoint.FollowUserOk
	code = bob.call(endpoint.FollowUserURL, map[string]any{"follows": aliceOk.UserID, "action": "Follow"}, &followed)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(followed.IsFollowing, qt.IsTrue)

	var home endpoint.HomePostsOk
	c.Assert(bob.call(endpoint.HomePostsURL, struct{}{}, &home), qt.Equals, http.StatusOK)
	c.Assert(home.Posts, qt.HasLen, 1)
	c.Assert(home.Posts[0].ByUser.AmFollowing, qt.IsTrue)

	reply := chatPost("reply")
	reply["options"].(map[string]any)["reply_to"] = posted.PostID
	var replied endpoint.NewPostOk
	c.Assert(bob.call(endpoint.NewPostURL, reply, &replied), qt.Equals, http.StatusOK)

	var profile endpoint.ViewProfileOk
	c.Assert(alice.call(endpoint.ViewProfileURL, map[string]any{"user_id": replied.PostID}, nil), qt.Equals, http.StatusNotFound)
	bobID := trendingAuthor(c, alice, replied.PostID)
	c.Assert(alice.call(endpoint.ViewProfileURL, map[string]any{"user_id": bobID}, &profile), qt.Equals, http.StatusOK)
	c.Assert(profile.Profile.Handle, qt.Equals, "bob")
	c.Assert(profile.Posts, qt.HasLen, 1)
	c.Assert(profile.Posts[0].ReplyTo, qt.IsNotNil)
	c.Assert(profile.Posts[0].ReplyTo.Handle, qt.Equals, "alice")
	c.Assert(profile.Posts[0].ReplyTo.PostID, qt.Equals, posted.PostID)

	missing := chatPost("orphan")
	missing["options"].(map[string]any)["reply_to"] = aliceOk.UserID
	c.Assert(bob.call(endpoint.NewPostURL, missing, nil), qt.Equals, http.StatusNotFound)
}

// trendingAuthor finds who wrote post in the trending feed.
func trendingAuthor(c *qt.C, client *apiClient, post fmt.Stringer) string {
	var trending endpoint.TrendingPostsOk
	c.Assert(client.call(endpoint.TrendingPostsURL, struct{}{}, &trending), qt.Equals, http.StatusOK)
	for _, p := range trending.Posts {
		if p.ID.String() == post.String() {
			return p.ByUser.ID.String()
		}
	}
	c.Fatalf("post %s not in trending feed", post)
	return ""
}

func TestPollAndImagePosts(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	c := qt.New(t)
	h := newIntegrationServer(c, t)

	alice, _ := signUp(c, h, "alice")
	past := time.Now().Add(-time.Minute)

	var poll endpoint.NewPostOk
	code := alice.call(endpoint.NewPostURL, map[string]any{
		"content": map[string]any{"Poll": map[string]any{
			"headline": "lunch?",
			"choices": []map[string]any{
				{"id": "00000000-0000-0000-0000-000000000000", "num_votes": 0, "description": "pizza"},
				{"id": "00000000-0000-0000-0000-000000000000", "num_votes": 0, "description": "salad"},
			},
			"voted": nil,
		}},
		"options": map[string]any{"time_posted": past},
	}, &poll)
	c.Assert(code, qt.Equals, http.StatusOK)

	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nimage"))
	var image endpoint.NewPostOk
	code = alice.call(endpoint.NewPostURL, map[string]any{
		"content": map[string]any{"Image": map[string]any{"kind": map[string]string{"DataUrl": png}, "caption": "cat"}},
		"options": map[string]any{"time_posted": past.Add(-time.Second)},
	}, &image)
	c.Assert(code, qt.Equals, http.StatusOK)

	var trending endpoint.TrendingPostsOk
	c.Assert(alice.call(endpoint.TrendingPostsURL, struct{}{}, &trending), qt.Equals, http.StatusOK)
	c.Assert(trending.Posts, qt.HasLen, 2)

	pollPost := trending.Posts[0]
	c.Assert(pollPost.ID, qt.Equals, poll.PostID)
	c.Assert(pollPost.Content.Poll, qt.IsNotNil)
	choices := pollPost.Content.Poll.Choices
	c.Assert(choices, qt.HasLen, 2)
	c.Assert(choices[0].ID, qt.Not(qt.Equals), choices[1].ID)

	imagePost := trending.Posts[1]
	c.Assert(imagePost.Content.Image, qt.IsNotNil)
	c.Assert(imagePost.Content.Image.Kind.URL, qt.IsNotNil)
	c.Assert(*imagePost.Content.Image.Kind.URL, qt.Matches, `http://api\.test/usercontent/img/[0-9a-f-]{36}`)

	var voted endpoint.VoteOk
	vote := map[string]any{"post_id": poll.PostID, "choice_id": choices[1].ID}
	c.Assert(alice.call(endpoint.VoteURL, vote, &voted), qt.Equals, http.StatusOK)
	c.Assert(voted.Cast, qt.Equals, endpoint.VoteYes)
	c.Assert(alice.call(endpoint.VoteURL, vote, &voted), qt.Equals, http.StatusOK)
	c.Assert(voted.Cast, qt.Equals, endpoint.VoteAlreadyVoted)

	c.Assert(alice.call(endpoint.TrendingPostsURL, struct{}{}, &trending), qt.Equals, http.StatusOK)
	results := trending.Posts[0].Content.Poll
	c.Assert(results.Voted, qt.IsNotNil)
	c.Assert(*results.Voted, qt.Equals, choices[1].ID)
	c.Assert(results.Choices[1].NumVotes, qt.Equals, int64(1))
	c.Assert(results.Choices[0].NumVotes, qt.Equals, int64(0))

	code = alice.call(endpoint.VoteURL, map[string]any{"post_id": image.PostID, "choice_id": choices[0].ID}, nil)
	c.Assert(code, qt.Equals, http.StatusNotFound)
}
