package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
		"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
)

var tstamp = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, []string{"name ASC"}, orderBy(nil, "name ASC"))
	assert.Equal(t, []string{"title DESC", "created_at ASC"}, orderBy([]core.DBOrdering{
		{Field: "title"},
		{Field: "created_at", Ascending: true},
	}, "name ASC"))
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		search string
		want   string
	}{
		{"jane", "%jane%"},
		{"50%", `%50\%%`},
		{"first_name", `%first\_name%`},
		{`C:\`, `%C:\\%`},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.search))
		})
	}
}

func TestUserRepository_GetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	q := `SELECT id, name, email, privilege, .* FROM users WHERE id = \$1`

	tests := []struct {
		name  string
		level interface{}
		want  privilege.Level
	}{
		{"absent privilege", nil, privilege.Unset},
		{"head", int64(1), privilege.SocietyHead},
		{"unknown level", int64(7), privilege.Level(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectQuery(q).WithArgs("usr-1").WillReturnRows(
				sqlmock.NewRows(userColumns).
					AddRow("usr-1", "Jane", "jane@iiitdwd.ac.in", tt.level, true, "coding-club", "CEO", []byte("hash"), tstamp, tstamp, nil),
			)
			usr, err := repo.GetUserByID(ctx, "usr-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, usr.Privilege)
			assert.Equal(t, "coding-club", core.StringVal(usr.SocietyID))
			assert.Nil(t, usr.LastLogin)
		})
	}

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)
		_, err := repo.GetUserByID(ctx, "nope")
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestUserRepository_GetUserByEmailForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE email = \$1 FOR UPDATE`).WithArgs("jane@iiitdwd.ac.in").WillReturnRows(
		sqlmock.NewRows(userColumns).
			AddRow("usr-1", "Jane", "jane@iiitdwd.ac.in", nil, true, nil, nil, nil, tstamp, tstamp, tstamp),
	)
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	usr, err := repo.GetUserByEmailForUpdate(ctx, "jane@iiitdwd.ac.in", tx)
	require.NoError(t, err)
	assert.Equal(t, privilege.Unset, usr.Privilege)
	assert.Nil(t, usr.SocietyID)
	assert.Nil(t, usr.PasswordHash)
	require.NotNil(t, usr.LastLogin)
	assert.Equal(t, tstamp, *usr.LastLogin)
	require.NoError(t, tx.Rollback())
}

func TestUserRepository_CreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	usr := user.User{ID: "usr-1", Name: "Jane", Email: "jane@iiitdwd.ac.in", Privilege: privilege.NormalUser, CreatedAt: tstamp, UpdatedAt: tstamp}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("usr-1", "Jane", "jane@iiitdwd.ac.in", int64(0), false, nil, nil, nil, tstamp, tstamp, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	got, err := repo.CreateUser(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, usr, got)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})
	_, err = repo.CreateUser(ctx, usr)
	assert.Equal(t, user.ErrEmailExists, err)
}

func TestUserRepository_QueryUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	verified := true

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE (name ILIKE $1 ESCAPE '\' OR email ILIKE $2 ESCAPE '\') AND `+resolvedPrivilege+` = ANY($3) AND email_verified = $4 ORDER BY name ASC`)).
		WithArgs(`%jan\_%`, `%jan\_%`, sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows(userColumns))

	users, err := repo.QueryUsers(context.Background(), &user.QueryFilter{
		Search:        "jan_",
		Privileges:    []int{0, 1},
		EmailVerified: &verified,
	}, []core.DBOrdering{{Field: "name", Ascending: true}})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepository_UpdatePrivilege(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	socID, role := "coding-club", "CFO"

	mock.ExpectExec(`UPDATE users SET privilege = \$1, society_id = \$2, society_role = \$3, updated_at = \$4 WHERE id = \$5`).
		WithArgs(int64(1), socID, role, tstamp, "usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdatePrivilege(ctx, "usr-1", privilege.SocietyHead, &socID, &role, tstamp))

	mock.ExpectExec(`UPDATE users SET privilege`).
		WithArgs(int64(0), nil, nil, tstamp, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, user.ErrNotFound, repo.UpdatePrivilege(ctx, "nope", privilege.NormalUser, nil, nil, tstamp))
}

func TestSocietyRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSocietyRepository(db)
	ctx := context.Background()

	t.Run("get for update", func(t *testing.T) {
		mock.ExpectQuery(`FROM societies WHERE id = \$1 FOR UPDATE`).WithArgs("coding-club").WillReturnRows(
			sqlmock.NewRows(societyColumns).AddRow(
				"coding-club", "Coding Club", "usr-1", nil, nil, 3, "", "", []byte(`{"github":"https://github.com/cc"}`), "",
				"{ev-1,ev-2}", "admin", tstamp, tstamp,
			),
		)
		soc, err := repo.GetSocietyForUpdate(ctx, "coding-club")
		require.NoError(t, err)
		assert.Equal(t, "usr-1", core.StringVal(soc.Heads.CEO))
		assert.Nil(t, soc.Heads.CFO)
		assert.Equal(t, []string{"ev-1", "ev-2"}, soc.EventIDs)
		assert.Equal(t, "https://github.com/cc", soc.SocialLinks["github"])
	})

	t.Run("duplicate", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO societies`).WillReturnError(&pq.Error{Code: "23505"})
		_, err := repo.CreateSociety(ctx, society.Society{ID: "coding-club", Name: "Coding Club"})
		assert.Equal(t, society.ErrDuplicateName, err)
	})

	t.Run("add event to unknown society", func(t *testing.T) {
		mock.ExpectExec(`UPDATE societies SET event_ids = CASE WHEN \$1 = ANY\(event_ids\) .*array_append\(event_ids, \$2::text\) END WHERE id = \$3`).
			WithArgs("ev-1", "ev-1", "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.Equal(t, society.ErrNotFound, repo.AddEventID(ctx, "ghost", "ev-1"))
	})

	t.Run("within transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE societies SET head_ceo = \$1, head_cfo = \$2, head_coo = \$3, updated_at = \$4 WHERE id = \$5`).
			WithArgs("usr-1", nil, nil, tstamp, "coding-club").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)
		ceo := "usr-1"
		require.NoError(t, repo.UpdateHeads(ctx, "coding-club", society.Heads{CEO: &ceo}, tstamp, tx))
		require.NoError(t, tx.Commit())
	})
}

func TestEventRepository_UpdateEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()
	status := event.StatusPublished

	// only the submitted columns are written
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE events SET status = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs("published", tstamp, "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateEvent(ctx, "ev-1", event.Changes{Status: &status, UpdatedAt: tstamp}))

	title := "Hack Night"
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE events SET title = $1, status = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs(title, "published", tstamp, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateEvent(ctx, "nope", event.Changes{Title: &title, Status: &status, UpdatedAt: tstamp})
	assert.Equal(t, event.ErrNotFound, err)
}

func TestEventRepository_QueryEvents(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	to := tstamp.AddDate(0, 1, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM events WHERE starts_at >= $1 AND starts_at < $2 AND (status <> $3 OR society_id = $4) ORDER BY starts_at ASC`)).
		WithArgs(tstamp, to, "draft", "coding-club").
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow(
			"ev-1", "coding-club", "Hackathon", "", "", tstamp, nil, []byte(`"Main Auditorium"`), "", "", "published",
			3, 1, 0, 0, "{tech}", "{}", "{}", "usr-1", tstamp, tstamp,
		))

	events, err := repo.QueryEvents(context.Background(), &event.QueryFilter{
		From:       tstamp,
		To:         to,
		Visibility: event.Visibility{SocietyID: "coding-club"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, event.Venue{Address: "Main Auditorium"}, ev.Venue)
	assert.Equal(t, event.Metrics{Views: 3, Likes: 1}, ev.Metrics)
	assert.Equal(t, []string{"tech"}, ev.Tags)
	assert.Equal(t, []string{}, ev.SubEventIDs)
	assert.Nil(t, ev.EndsAt)
}

func TestEventRepository_Metrics(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE events SET views = GREATEST\(views \+ \$1, 0\), likes = GREATEST\(likes \+ \$2, 0\), .* WHERE id = \$5`).
		WithArgs(0, -1, 0, 0, "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementMetrics(ctx, "ev-1", event.Metrics{Likes: -1}))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE events SET status = $1, updated_at = $2 WHERE status = $3 AND COALESCE(ends_at, starts_at) < $4`)).
		WithArgs("concluded", tstamp, "published", tstamp).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := repo.ConcludeEvents(ctx, tstamp, tstamp)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestModuleRepository_GetModule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewModuleRepository(db)

	mock.ExpectQuery(`FROM modules WHERE id = \$1`).WithArgs("mod-1").WillReturnRows(
		sqlmock.NewRows(moduleColumns).AddRow(
			"mod-1", "ev-1", 2, "Keynote", "", nil, nil, []byte(`{"room":"101"}`), 99.5,
			[]byte(`{"name":"slides.pdf","url":"http://media.test/slides.pdf","size":2048}`), "{spk-1}", tstamp, tstamp,
		),
	)
	mod, err := repo.GetModule(context.Background(), "mod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, mod.Order)
	assert.Equal(t, event.Venue{Room: "101"}, mod.Venue)
	assert.Equal(t, 99.5, mod.Price)
	require.NotNil(t, mod.Document)
	assert.Equal(t, int64(2048), mod.Document.Size)
	assert.Equal(t, []string{"spk-1"}, mod.SpeakerIDs)

	mock.ExpectQuery(`FROM modules WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetModule(context.Background(), "nope")
	assert.Equal(t, event.ErrModuleNotFound, err)
}

func TestSpeakerRepository_QuerySpeakers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSpeakerRepository(db)

	mock.ExpectQuery(`FROM speakers WHERE id IN \(\$1,\$2,\$3\)`).
		WithArgs("spk-2", "ghost", "spk-1").
		WillReturnRows(sqlmock.NewRows(speakerColumns).
			AddRow("spk-1", "Ada", "", "", "", "", "", "admin", tstamp, tstamp).
			AddRow("spk-2", "Bob", "", "", "", "", "", "admin", tstamp, tstamp))

	speakers, err := repo.QuerySpeakers(context.Background(), []string{"spk-2", "ghost", "spk-1"})
	require.NoError(t, err)
	require.Len(t, speakers, 2)
	assert.Equal(t, "Bob", speakers[0].Name)
	assert.Equal(t, "Ada", speakers[1].Name)
}

func TestEngagementRepository_RecordView(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEngagementRepository(db)
	first := tstamp.Add(-time.Hour)

	mock.ExpectQuery(`INSERT INTO engagements \(event_id,user_id,has_viewed,view_count,viewed_at,last_viewed_at\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6\) ON CONFLICT \(event_id, user_id\) DO UPDATE SET\s+has_viewed = TRUE,\s+view_count = engagements.view_count \+ 1`).
		WithArgs("ev-1", "usr-1", true, 1, tstamp, tstamp).
		WillReturnRows(sqlmock.NewRows(engagementColumns).
			AddRow("ev-1", "usr-1", true, 2, first, tstamp, false, nil, false, nil, 0, nil))

	rec, err := repo.RecordView(context.Background(), "ev-1", "usr-1", tstamp)
	require.NoError(t, err)
	assert.True(t, rec.HasViewed)
	assert.Equal(t, 2, rec.ViewCount)
	assert.Equal(t, first, *rec.ViewedAt)
	assert.Equal(t, tstamp, *rec.LastViewedAt)
	assert.Nil(t, rec.LikedAt)
}

func TestRepository_getExec(t *testing.T) {
	db, _ := newMockDB(t)
	repo := repository{db: db}
	assert.Equal(t, sqlx.ExtContext(db), repo.getExec(nil))
	assert.Panics(t, func() { repo.getExec([]core.DBExecutor{db.DB}) })
}
