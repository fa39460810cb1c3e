package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/smartsched/plugin/nlp/datetime"
)

func jst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func TestRuleBasedExtract(t *testing.T) {
	loc := jst(t)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, loc) // Wednesday
	ex := NewRuleBasedExtractor(datetime.NewResolver(loc))

	t.Run("meeting with time duration and location", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "明日15時から1時間、オフィスで会議", now)
		require.NoError(t, err)

		assert.Equal(t, "会議", ev.Title)
		assert.Equal(t, time.Date(2025, 1, 2, 15, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 2, 16, 0, 0, 0, loc), ev.End)
		assert.Equal(t, "オフィス", ev.Location)
		assert.False(t, ev.AllDay)
		assert.InDelta(t, 0.9, ev.Confidence, 1e-9)
	})

	t.Run("no schedule content stays at base confidence", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "了解です", now)
		require.NoError(t, err)

		assert.Equal(t, DefaultTitle, ev.Title)
		assert.InDelta(t, 0.3, ev.Confidence, 1e-9)
		assert.True(t, ev.AllDay)
		assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, loc), ev.Start)
	})

	t.Run("explicit start and end", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "来週の月曜10時から11時30分までミーティング", now)
		require.NoError(t, err)

		assert.Equal(t, "ミーティング", ev.Title)
		assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 6, 11, 30, 0, 0, loc), ev.End)
	})

	t.Run("end before start spans midnight", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "明日23時から1時まで飲み会", now)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2025, 1, 2, 23, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 3, 1, 0, 0, 0, loc), ev.End)
	})

	t.Run("all day keyword", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "3月15日は終日研修です", now)
		require.NoError(t, err)

		assert.True(t, ev.AllDay)
		assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, loc), ev.End)
		assert.Equal(t, "研修", ev.Title)
	})

	t.Run("quoted title wins over vocabulary", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "明日14時に「四半期レビュー」の会議", now)
		require.NoError(t, err)

		assert.Equal(t, "四半期レビュー", ev.Title)
	})

	t.Run("explicit duration phrase", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "明日10時からの勉強会、2時間半の予定", now)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, loc), ev.Start)
		assert.Equal(t, time.Date(2025, 1, 2, 12, 30, 0, 0, loc), ev.End)
	})

	t.Run("lunch gets ninety minutes", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "金曜12時からランチ", now)
		require.NoError(t, err)

		assert.Equal(t, 90*time.Minute, ev.End.Sub(ev.Start))
	})

	t.Run("location marker phrase", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "明日15時から打ち合わせ。場所は本社3階で", now)
		require.NoError(t, err)

		assert.Equal(t, "本社3階", ev.Location)
	})

	t.Run("dateless mention defaults to tomorrow", func(t *testing.T) {
		ev, err := ex.Extract(context.Background(), "16時から商談", now)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2025, 1, 2, 16, 0, 0, 0, loc), ev.Start)
		assert.InDelta(t, 0.6, ev.Confidence, 1e-9) // base + title + time
	})
}

func TestRuleBasedExtractDescriptionKeepsOriginalText(t *testing.T) {
	loc := jst(t)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, loc)
	ex := NewRuleBasedExtractor(datetime.NewResolver(loc))

	text := "  明日15時から会議  "
	ev, err := ex.Extract(context.Background(), text, now)
	require.NoError(t, err)
	assert.Equal(t, "明日15時から会議", ev.Description)
}
