package content

import (
	"context"
	"errors"
	"testing"

	"github.com/KTachibanaM/pill-city/internal/graph"
	"github.com/KTachibanaM/pill-city/internal/mention"
	"github.com/KTachibanaM/pill-city/internal/notification"
	"github.com/KTachibanaM/pill-city/internal/visibility"
	"github.com/pashagolub/pgxmock/v3"
)

type fakePusher struct {
	pushed map[string][][]byte
}

func (f *fakePusher) Push(ownerID string, payload []byte) {
	if f.pushed == nil {
		f.pushed = map[string][][]byte{}
	}
	f.pushed[ownerID] = append(f.pushed[ownerID], payload)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newService(mock pgxmock.PgxPoolIface, pusher Pusher) *Service {
	g := graph.NewService(mock, nil)
	dispatcher := notification.NewService(mock)
	return NewService(mock, g, visibility.NewChecker(mock, nil), dispatcher, mention.NewResolver(g, dispatcher), pusher)
}

func strPtr(s string) *string { return &s }

func expectLoadPost(mock pgxmock.PgxPoolIface, postID, authorID string, content *string, public bool, circleIDs ...string) {
	mock.ExpectQuery(`SELECT id, author_id, content, is_public, reshareable, reshared_from, created_at\s+FROM posts`).
		WithArgs(postID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "author_id", "content", "is_public", "reshareable", "reshared_from", "created_at"}).
			AddRow(postID, authorID, content, public, false, nil, int64(1700000000)))
	circles := pgxmock.NewRows([]string{"circle_id"})
	for _, id := range circleIDs {
		circles.AddRow(id)
	}
	mock.ExpectQuery(`SELECT circle_id FROM post_circles`).
		WithArgs(postID).
		WillReturnRows(circles)
}

func expectMembership(mock pgxmock.PgxPoolIface, viewerID string, member bool) {
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(viewerID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(member))
}

func expectComments(mock pgxmock.PgxPoolIface, postID string, rows *pgxmock.Rows) {
	mock.ExpectQuery(`SELECT id, parent_comment_id, author_id, content, created_at\s+FROM comments`).
		WithArgs(postID).
		WillReturnRows(rows)
}

func emptyComments() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "parent_comment_id", "author_id", "content", "created_at"})
}

func TestCreateCommentNotifiesPostAuthor(t *testing.T) {
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	expectLoadPost(mock, "p1", "alice", strPtr("hello world"), true)
	expectComments(mock, "p1", emptyComments())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "p1", nil, "bob", "nice post", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), "comment", "bob", pgxmock.AnyArg(), "nice post", "alice", "/post/p1", "hello world", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	comment, err := svc.CreateComment(context.Background(), "bob", "p1", CreateCommentInput{Content: strPtr("nice post")})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if comment.ID == "" || comment.CreatedAt == 0 {
		t.Fatalf("unexpected comment %+v", comment)
	}
	if len(pusher.pushed["alice"]) != 1 {
		t.Fatalf("expected one pushed notification for alice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCommentOnOwnPostNoSelfNotification(t *testing.T) {
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "p1", nil, "alice", "replying to myself", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if _, err := svc.CreateComment(context.Background(), "alice", "p1", CreateCommentInput{Content: strPtr("replying to myself")}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if len(pusher.pushed) != 0 {
		t.Fatalf("expected zero notifications, got %v", pusher.pushed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCommentDeniedOutsideAudience(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("secret"), false, "c1")
	expectMembership(mock, "dave", false)

	_, err := svc.CreateComment(context.Background(), "dave", "p1", CreateCommentInput{Content: strPtr("let me in")})
	if !errors.Is(err, visibility.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// no transaction was opened, the tree is untouched
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNestedCommentNotifiesParentAuthorAndMentions(t *testing.T) {
	// author alice, private post addressed to {bob, carol}; bob commented
	// top-level; carol replies nested to bob, mentioning dave who cannot see
	// the post. The comment notification goes to bob (not alice); the mention
	// notification reaches dave regardless of his read access.
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	expectLoadPost(mock, "p1", "alice", strPtr("secret"), false, "c1")
	expectMembership(mock, "carol", true)
	expectComments(mock, "p1", emptyComments().
		AddRow("cb", nil, "bob", "first!", int64(1700000001)))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "p1", strPtr("cb"), "carol", "replying to bob", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), "comment", "carol", pgxmock.AnyArg(), "replying to bob", "bob", "/post/p1#comment-cb", "first!", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT id FROM users`).
		WithArgs("dave").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("dave"))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), "mention", "carol", "/profile/carol", "", "dave", pgxmock.AnyArg(), "replying to bob", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err := svc.CreateComment(context.Background(), "carol", "p1", CreateCommentInput{
		Content:          strPtr("replying to bob"),
		ParentCommentID:  strPtr("cb"),
		MentionedUserIDs: []string{"dave"},
	})
	if err != nil {
		t.Fatalf("create nested comment: %v", err)
	}
	if len(pusher.pushed["bob"]) != 1 || len(pusher.pushed["dave"]) != 1 {
		t.Fatalf("expected pushes for bob and dave, got %v", pusher.pushed)
	}
	if len(pusher.pushed["alice"]) != 0 {
		t.Fatalf("post author must not be notified for a nested reply")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCommentUnknownParent(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments())

	_, err := svc.CreateComment(context.Background(), "bob", "p1", CreateCommentInput{
		Content:         strPtr("hi"),
		ParentCommentID: strPtr("missing"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateCommentCannotNestTwice(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments().
		AddRow("cb", nil, "bob", "top", int64(1700000001)).
		AddRow("cn", strPtr("cb"), "carol", "nested", int64(1700000002)))

	_, err := svc.CreateComment(context.Background(), "bob", "p1", CreateCommentInput{
		Content:         strPtr("too deep"),
		ParentCommentID: strPtr("cn"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateCommentNilContent(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "p1", nil, "bob", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if _, err := svc.CreateComment(context.Background(), "bob", "p1", CreateCommentInput{}); err != nil {
		t.Fatalf("nil content must pass through as empty: %v", err)
	}
}

func TestCreateCommentSanitizesMarkup(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(pgxmock.AnyArg(), "p1", nil, "bob", "hi", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if _, err := svc.CreateComment(context.Background(), "bob", "p1", CreateCommentInput{
		Content: strPtr(`<script>alert(1)</script>hi`),
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
}

func TestGetPostDeniedStaysForbidden(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("secret"), false, "c1")
	expectMembership(mock, "dave", false)

	_, err := svc.GetPost(context.Background(), "dave", "p1")
	if !errors.Is(err, visibility.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("forbidden must not collapse into not-found")
	}
}

func TestGetPostMissing(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	mock.ExpectQuery(`FROM posts`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "author_id", "content", "is_public", "reshareable", "reshared_from", "created_at"}))

	_, err := svc.GetPost(context.Background(), "bob", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatePostRejectsForeignCircle(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	mock.ExpectQuery(`SELECT id FROM circles WHERE owner_id`).
		WithArgs("mallory", []string{"c1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := svc.CreatePost(context.Background(), "mallory", CreatePostInput{
		Content:   strPtr("sneaky"),
		CircleIDs: []string{"c1"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign circle, got %v", err)
	}
}

func TestReshareRequiresReshareableOriginal(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "orig", "alice", strPtr("original"), true)

	_, err := svc.CreatePost(context.Background(), "bob", CreatePostInput{
		Content:      strPtr("look at this"),
		Public:       true,
		ResharedFrom: strPtr("orig"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReshareNotifiesOriginalAuthor(t *testing.T) {
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	mock.ExpectQuery(`FROM posts`).
		WithArgs("orig").
		WillReturnRows(pgxmock.NewRows([]string{"id", "author_id", "content", "is_public", "reshareable", "reshared_from", "created_at"}).
			AddRow("orig", "alice", strPtr("original"), true, true, nil, int64(1700000000)))
	mock.ExpectQuery(`SELECT circle_id FROM post_circles`).
		WithArgs("orig").
		WillReturnRows(pgxmock.NewRows([]string{"circle_id"}))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO posts`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), "reshare", "bob", pgxmock.AnyArg(), "look at this", "alice", "/post/orig", "original", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	post, err := svc.CreatePost(context.Background(), "bob", CreatePostInput{
		Content:      strPtr("look at this"),
		Public:       true,
		ResharedFrom: strPtr("orig"),
	})
	if err != nil {
		t.Fatalf("reshare: %v", err)
	}
	if post.ResharedFrom == nil || *post.ResharedFrom != "orig" {
		t.Fatalf("unexpected reshare provenance %+v", post)
	}
	if len(pusher.pushed["alice"]) != 1 {
		t.Fatalf("expected reshare push for alice")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReactNotifies(t *testing.T) {
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reactions`).
		WithArgs(pgxmock.AnyArg(), "p1", "bob", "👍", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), "reaction", "bob", "/post/p1", "👍", "alice", "/post/p1", "hello", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := svc.React(context.Background(), "bob", "p1", "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(pusher.pushed["alice"]) != 1 {
		t.Fatalf("expected reaction push for alice")
	}
}

func TestReactOnOwnPostNoNotification(t *testing.T) {
	mock := newMock(t)
	pusher := &fakePusher{}
	svc := newService(mock, pusher)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reactions`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := svc.React(context.Background(), "alice", "p1", "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(pusher.pushed) != 0 {
		t.Fatalf("expected no self-notification")
	}
}

func TestHomeFeedFiltersByAudience(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	mock.ExpectQuery(`FROM posts`).
		WithArgs("bob").
		WillReturnRows(pgxmock.NewRows([]string{"id", "author_id", "content", "is_public", "reshareable", "reshared_from", "created_at"}).
			AddRow("p1", "alice", strPtr("public"), true, false, nil, int64(1700000002)).
			AddRow("p2", "alice", strPtr("for the circle"), false, false, nil, int64(1700000001)).
			AddRow("p3", "alice", strPtr("not for bob"), false, false, nil, int64(1700000000)))
	mock.ExpectQuery(`SELECT post_id, circle_id FROM post_circles`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"post_id", "circle_id"}).
			AddRow("p2", "c1").
			AddRow("p3", "c2"))
	mock.ExpectQuery(`SELECT circle_id FROM circle_members`).
		WithArgs("bob").
		WillReturnRows(pgxmock.NewRows([]string{"circle_id"}).AddRow("c1"))

	feed, err := svc.HomeFeed(context.Background(), "bob")
	if err != nil {
		t.Fatalf("home feed: %v", err)
	}
	if len(feed) != 2 || feed[0].ID != "p1" || feed[1].ID != "p2" {
		t.Fatalf("unexpected feed %+v", feed)
	}
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	mock := newMock(t)
	svc := newService(mock, nil)

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments().
		AddRow("cb", nil, "bob", "mine", int64(1700000001)))

	if err := svc.DeleteComment(context.Background(), "mallory", "p1", "cb"); !errors.Is(err, visibility.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	expectLoadPost(mock, "p1", "alice", strPtr("hello"), true)
	expectComments(mock, "p1", emptyComments().
		AddRow("cb", nil, "bob", "mine", int64(1700000001)))
	mock.ExpectExec(`DELETE FROM comments`).
		WithArgs("cb").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := svc.DeleteComment(context.Background(), "bob", "p1", "cb"); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
}
