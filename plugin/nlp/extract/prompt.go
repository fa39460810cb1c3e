package extract

import (
	"encoding/json"
	"fmt"
	"time"
)

const extractionSystemPrompt = "あなたは日本の会話から予定情報を正確に抽出する専門AIです。" +
	"ユーザーの会話から、これから行われる予定に関する情報を詳細に分析して抽出してください。" +
	"日本語の曖昧な表現や、文脈から推測できる情報も考慮して、できるだけ正確な予定詳細を特定してください。" +
	"既に過去の出来事については予定として抽出せず、未来の予定のみを抽出してください。"

var jpWeekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// timeContext is the structured grounding block embedded in the prompt.
// JSON parses more reliably for the model than free-form date prose.
type timeContext struct {
	Date             string `json:"date"`
	Time             string `json:"time"`
	Weekday          string `json:"weekday"`
	Tomorrow         string `json:"tomorrow"`
	DayAfterTomorrow string `json:"day_after_tomorrow"`
	NextMonday       string `json:"next_monday"`
	Timezone         string `json:"timezone"`
	BusinessHours    string `json:"business_hours"`
}

func newTimeContext(now time.Time) timeContext {
	daysToNextMonday := (8 - int(now.Weekday())) % 7
	if daysToNextMonday == 0 {
		daysToNextMonday = 7
	}
	return timeContext{
		Date:             now.Format("2006-01-02"),
		Time:             now.Format("15:04"),
		Weekday:          jpWeekdays[now.Weekday()],
		Tomorrow:         now.AddDate(0, 0, 1).Format("2006-01-02"),
		DayAfterTomorrow: now.AddDate(0, 0, 2).Format("2006-01-02"),
		NextMonday:       now.AddDate(0, 0, daysToNextMonday).Format("2006-01-02"),
		Timezone:         now.Location().String(),
		BusinessHours:    "09:00-18:00",
	}
}

// buildExtractionPrompt renders the fixed-contract user prompt. The vague
// time-of-day vocabulary must stay consistent with the rule-based extractor
// so the two strategies disambiguate identically.
func buildExtractionPrompt(text string, now time.Time) string {
	ctx, _ := json.Marshal(newTimeContext(now))

	return fmt.Sprintf(`以下の会話から、未来の予定情報を抽出してください。

【現在の日時情報】
%s

以下のJSONフォーマットのみで返してください:
{
  "title": "予定のタイトルや内容（会議名、イベント名など）",
  "date": "YYYY-MM-DD形式の日付",
  "start_time": "HH:MM形式の開始時間",
  "end_time": "HH:MM形式の終了時間（明示されていない場合は開始から1時間後）",
  "location": "場所（指定されていない場合は空欄、オンラインの場合は「オンライン」）",
  "description": "予定の詳細説明",
  "all_day": false,
  "participants": ["参加者1", "参加者2"],
  "confidence": 0.0
}

【重要なポイント】
1. 時間表現は24時間制で返してください（例: 午後3時→15:00）
2. 「明日」「来週」などの相対的な表現は具体的な日付に変換してください
3. 曖昧な時間帯表現は次の時刻に変換してください: 朝=8:00、午前=10:00、昼=12:00、午後=14:00、夕方=17:00、夜=19:00、夜遅く=22:00
4. 「〜時から2時間」などの期間表現から終了時間を計算してください
5. 予定が含まれていない場合や情報が極端に不足している場合は、confidenceを0.3未満にしてください
6. 過去の予定ではなく、これから行われる未来の予定のみを抽出してください
7. confidenceは0.0〜1.0の数値で、この予定情報の確信度を表します

【分析対象の会話】
%s`, ctx, text)
}
