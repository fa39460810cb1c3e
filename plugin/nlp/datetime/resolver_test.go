package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func TestResolveDate_RelativeKeywords(t *testing.T) {
	loc := jst(t)
	r := NewResolver(loc)
	// 2025-01-01 is a Wednesday.
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, loc)

	tests := []struct {
		name     string
		input    string
		wantDate string
	}{
		{"今日", "今日の予定", "2025-01-01"},
		{"本日", "本日15時から", "2025-01-01"},
		{"明日", "明日の会議", "2025-01-02"},
		{"明後日", "明後日にします", "2025-01-03"},
		{"あさって", "あさっての朝", "2025-01-03"},
		{"来週", "来週にしよう", "2025-01-08"},
		{"再来週", "再来週でどうですか", "2025-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveDate(tt.input, now)
			require.True(t, ok)
			assert.Equal(t, tt.wantDate, got.Format("2006-01-02"))
		})
	}
}

func TestResolveDate_Weekdays(t *testing.T) {
	loc := jst(t)
	r := NewResolver(loc)
	// Wednesday.
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, loc)

	tests := []struct {
		name     string
		input    string
		wantDate string
	}{
		{"今週の金曜", "今週の金曜にミーティング", "2025-01-03"},
		{"今週の水曜は来週へ", "今週の水曜に", "2025-01-08"},
		{"来週の水曜", "来週の水曜に打ち合わせ", "2025-01-08"},
		{"来週の月曜", "来週の月曜日", "2025-01-06"},
		{"次の金曜", "次の金曜でお願いします", "2025-01-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveDate(tt.input, now)
			require.True(t, ok)
			assert.Equal(t, tt.wantDate, got.Format("2006-01-02"))
		})
	}
}

func TestResolveDate_Numeric(t *testing.T) {
	loc := jst(t)
	r := NewResolver(loc)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, loc)

	tests := []struct {
		name     string
		input    string
		wantDate string
	}{
		{"月日", "7月20日に面談", "2025-07-20"},
		{"過去の月日は来年", "3月15日に顧客との会議", "2026-03-15"},
		{"同月の過去日は来年", "6月10日", "2026-06-10"},
		{"スラッシュ", "7/20の予定", "2025-07-20"},
		{"フル日付", "2025/12/01に開催", "2025-12-01"},
		{"N日後", "3日後にリマインド", "2025-06-18"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveDate(tt.input, now)
			require.True(t, ok)
			assert.Equal(t, tt.wantDate, got.Format("2006-01-02"))
		})
	}
}

func TestResolveDate_NoMatch(t *testing.T) {
	r := NewResolver(jst(t))
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, r.Location())

	_, ok := r.ResolveDate("了解です", now)
	assert.False(t, ok)
}

func TestResolveTimes(t *testing.T) {
	r := NewResolver(jst(t))

	tests := []struct {
		name  string
		input string
		want  []TimeOfDay
	}{
		{
			"H時", "15時から会議",
			[]TimeOfDay{{Hour: 15, Minute: 0}},
		},
		{
			"H時M分", "9時30分に集合",
			[]TimeOfDay{{Hour: 9, Minute: 30}},
		},
		{
			"HH:MM", "14:15スタート",
			[]TimeOfDay{{Hour: 14, Minute: 15}},
		},
		{
			"午後H時", "午後3時にお願いします",
			[]TimeOfDay{{Hour: 15, Minute: 0}},
		},
		{
			"午前H時", "午前10時に開始",
			[]TimeOfDay{{Hour: 10, Minute: 0}},
		},
		{
			"文脈の午後", "午後でいうと3時から",
			[]TimeOfDay{{Hour: 14, Minute: 0}, {Hour: 15, Minute: 0}},
		},
		{
			"PM文脈", "PMの4時はどう？",
			[]TimeOfDay{{Hour: 16, Minute: 0}},
		},
		{
			"時間範囲", "10時から11時30分まで",
			[]TimeOfDay{{Hour: 10, Minute: 0}, {Hour: 11, Minute: 30}},
		},
		{
			"夕方", "夕方に軽く飲みましょう",
			[]TimeOfDay{{Hour: 17, Minute: 0}},
		},
		{
			"夜遅く", "夜遅くになりそう",
			[]TimeOfDay{{Hour: 22, Minute: 0}},
		},
		{
			"正午", "正午に昼食",
			[]TimeOfDay{{Hour: 12, Minute: 0}, {Hour: 12, Minute: 0}},
		},
		{
			"該当なし", "了解です",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveTimes(tt.input)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Hour, got[i].Hour, "hour of match %d", i)
				assert.Equal(t, tt.want[i].Minute, got[i].Minute, "minute of match %d", i)
			}
		})
	}
}

func TestResolveTimes_OrderedByPosition(t *testing.T) {
	r := NewResolver(jst(t))

	got := r.ResolveTimes("夜は空いてないので15時から")
	require.Len(t, got, 2)
	assert.Equal(t, 19, got[0].Hour)
	assert.Equal(t, 15, got[1].Hour)
	assert.Less(t, got[0].Pos, got[1].Pos)
}

func TestResolveDuration(t *testing.T) {
	r := NewResolver(jst(t))

	tests := []struct {
		input  string
		want   time.Duration
		wantOK bool
	}{
		{"2時間ほど", 2 * time.Hour, true},
		{"1時間半です", 90 * time.Minute, true},
		{"45分だけ", 45 * time.Minute, true},
		{"長さ未定", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := r.ResolveDuration(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombine(t *testing.T) {
	loc := jst(t)
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, loc)

	got := Combine(date, TimeOfDay{Hour: 15, Minute: 30}, loc)
	assert.Equal(t, "2025-01-02T15:30:00+09:00", got.Format(time.RFC3339))
}
