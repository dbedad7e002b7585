package parser

import (
	"fmt"
	"html"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

const (
	filledStar = `<svg class="ePMStd"><path fill="#fabb05"></path></svg>`
	emptyStar  = `<svg class="ePMStd"><path fill="#dadce0"></path></svg>`
)

// stars 生成k个实心星和5-k个空心星, 顺序交错
func stars(k int) string {
	var b strings.Builder
	filled, empty := k, 5-k
	for filled > 0 || empty > 0 {
		if empty > 0 {
			b.WriteString(emptyStar)
			empty--
		}
		if filled > 0 {
			b.WriteString(filledStar)
			filled--
		}
	}
	return b.String()
}

const specialSection = `<div class="zMjRQd">` +
	`<div style="font-weight: 500;">Waktu kunjungan</div><div>Malam</div><br>` +
	`<div style="font-weight: 500;">Waktu antrean</div><div aria-label="Tidak perlu antre">Tidak ada</div><br>` +
	`<div style="font-weight: 500;">Sebaiknya buat reservasi</div><div>Tidak perlu</div>` +
	`</div>`

func block(id string, rating string, caption string) string {
	ratingDiv := ""
	if rating != "" {
		ratingDiv = `<div class="dHX2k">` + rating + `</div>`
	}
	return fmt.Sprintf(`<div class="bwb7ce" data-id="%s">`+
		`<a class="yC3ZMb" href="https://www.google.com/maps/contrib/%s"><div class="wSokxc" style="background-image: url('https://lh3.googleusercontent.com/%s.png');"></div></a>`+
		`<div class="Vpc5Fe"> Reviewer %s </div>`+
		`%s<span class="y3Ibjb">2 minggu lalu</span>`+
		`<div class="OA1nbd">%s</div>`+
		`</div>`, id, id, id, id, ratingDiv, caption)
}

func page(blocks ...string) string {
	return "<html><body><div class=\"list\">" + strings.Join(blocks, "") + "</div></body></html>"
}

func parseFirst(t *testing.T, p *Parser, markup string) models.ReviewRecord {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("构建文档失败: %v", err)
	}
	sel := doc.Find(p.sel.Item).First()
	if sel.Length() == 0 {
		t.Fatal("未找到评论块")
	}
	return p.ParseOne(sel)
}

func TestParseOneRating(t *testing.T) {
	p := NewDefault()

	for k := 0; k <= 5; k++ {
		t.Run(fmt.Sprintf("%d颗实心星", k), func(t *testing.T) {
			r := parseFirst(t, p, page(block("r1", stars(k), "ok")))
			if !r.Rating.Valid {
				t.Fatal("存在评分组件时 Rating.Valid 应为 true")
			}
			if r.Rating.Value != k {
				t.Errorf("Rating = %d, want %d", r.Rating.Value, k)
			}
		})
	}

	t.Run("无评分组件", func(t *testing.T) {
		r := parseFirst(t, p, page(block("r1", "", "ok")))
		if r.Rating.Valid {
			t.Errorf("无评分组件时应为空哨兵, 得到 %+v", r.Rating)
		}
		if r.Rating.String() != "" {
			t.Errorf("Rating.String() = %q, want empty", r.Rating.String())
		}
	})

	t.Run("评分组件内无星形图标", func(t *testing.T) {
		r := parseFirst(t, p, page(block("r1", "<span></span>", "ok")))
		if !r.Rating.Valid || r.Rating.Value != 0 {
			t.Errorf("Rating = %+v, want 0颗星", r.Rating)
		}
	})
}

func TestParseOneFields(t *testing.T) {
	p := NewDefault()
	r := parseFirst(t, p, page(block("abc", stars(4), "  Makanannya   enak <b>sekali</b>  ")))

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"name", r.Name, "Reviewer abc"},
		{"username", r.Username, "https://www.google.com/maps/contrib/abc"},
		{"user_photo", r.UserPhotoURL, "https://lh3.googleusercontent.com/abc.png"},
		{"timestamp", r.Timestamp, "2 minggu lalu"},
		{"caption", r.Caption, "Makanannya enak sekali"},
		{"review_id", r.ReviewID, "abc"},
		{"visit_time", r.VisitTime, ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.field, tt.got, tt.want)
			}
		})
	}
}

func TestParseOneMissingFields(t *testing.T) {
	p := NewDefault()
	r := parseFirst(t, p, page(`<div class="bwb7ce"></div>`))

	if r != (models.ReviewRecord{}) {
		t.Errorf("空评论块应产生零值记录, 得到 %+v", r)
	}
}

func TestParseOnePhotoWithoutURL(t *testing.T) {
	p := NewDefault()
	markup := page(`<div class="bwb7ce"><div class="wSokxc" style="background-color: red;"></div></div>`)
	if r := parseFirst(t, p, markup); r.UserPhotoURL != "" {
		t.Errorf("UserPhotoURL = %q, want empty", r.UserPhotoURL)
	}
}

func TestParseOneSpecialSection(t *testing.T) {
	p := NewDefault()
	caption := "Tempatnya nyaman." + specialSection + " Pelayanan cepat."
	r := parseFirst(t, p, page(block("r1", stars(5), caption)))

	if r.VisitTime != "Malam" {
		t.Errorf("VisitTime = %q, want %q", r.VisitTime, "Malam")
	}
	if r.QueueTime != "Tidak perlu antre" {
		t.Errorf("QueueTime 应优先使用aria-label, 得到 %q", r.QueueTime)
	}
	if r.ReservationNote != "Tidak perlu" {
		t.Errorf("ReservationNote = %q, want %q", r.ReservationNote, "Tidak perlu")
	}
	if r.Caption != "Tempatnya nyaman. Pelayanan cepat." {
		t.Errorf("Caption = %q", r.Caption)
	}
	for _, leaked := range []string{"Waktu", "Malam", "Tidak"} {
		if strings.Contains(r.Caption, leaked) {
			t.Errorf("Caption 残留元数据片段 %q: %q", leaked, r.Caption)
		}
	}
}

func TestParseOneDoesNotMutateSnapshot(t *testing.T) {
	p := NewDefault()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page(block("r1", stars(3), "x"+specialSection))))
	if err != nil {
		t.Fatal(err)
	}
	sel := doc.Find(p.sel.Item).First()

	first := p.ParseOne(sel)
	second := p.ParseOne(sel)
	if first != second {
		t.Errorf("重复解析结果不一致:\n%+v\n%+v", first, second)
	}
	if doc.Find(p.sel.Special).Length() != 1 {
		t.Error("ParseOne 不应修改原始快照")
	}
}

func TestMetadataLabelValueAlignment(t *testing.T) {
	p := NewDefault()

	tests := []struct {
		name    string
		section string
		want    models.ReviewRecord
	}{
		{
			name: "标签缺少值时不错位",
			section: `<div class="zMjRQd">` +
				`<div style="font-weight: 500;">Waktu kunjungan</div>` +
				`<div style="font-weight: 500;">Waktu antrean</div><div>10-30 menit</div>` +
				`</div>`,
			want: models.ReviewRecord{QueueTime: "10-30 menit"},
		},
		{
			name: "前置的孤立值被忽略",
			section: `<div class="zMjRQd">` +
				`<div>orphan</div>` +
				`<div style="font-weight: 500;">Reservasi</div><div>Disarankan</div>` +
				`</div>`,
			want: models.ReviewRecord{ReservationNote: "Disarankan"},
		},
		{
			name: "样式空白差异仍识别为标签",
			section: `<div class="zMjRQd">` +
				`<div style="font-weight:500">WAKTU KUNJUNGAN</div><div>Siang</div>` +
				`</div>`,
			want: models.ReviewRecord{VisitTime: "Siang"},
		},
		{
			name: "未知标签不赋值",
			section: `<div class="zMjRQd">` +
				`<div style="font-weight: 500;">Harga per orang</div><div>Rp 50.000</div>` +
				`</div>`,
			want: models.ReviewRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parseFirst(t, p, page(`<div class="bwb7ce"><div class="OA1nbd">`+tt.section+`</div></div>`))
			if r.VisitTime != tt.want.VisitTime || r.QueueTime != tt.want.QueueTime || r.ReservationNote != tt.want.ReservationNote {
				t.Errorf("元数据 = (%q, %q, %q), want (%q, %q, %q)",
					r.VisitTime, r.QueueTime, r.ReservationNote,
					tt.want.VisitTime, tt.want.QueueTime, tt.want.ReservationNote)
			}
			if r.Caption != "" {
				t.Errorf("仅含元数据段时 Caption 应为空, 得到 %q", r.Caption)
			}
		})
	}
}

func TestCaptionStrippingIdempotent(t *testing.T) {
	p := NewDefault()
	captions := []string{
		"Enak & murah <3" + specialSection,
		"Baris pertama<br>baris   kedua" + specialSection + "<span>penutup</span>",
		specialSection + "hanya setelah",
	}

	for i, caption := range captions {
		t.Run(fmt.Sprintf("caption_%d", i), func(t *testing.T) {
			first := parseFirst(t, p, page(block("r1", "", caption)))
			reparsed := parseFirst(t, p, page(block("r1", "", html.EscapeString(first.Caption))))

			if reparsed.Caption != first.Caption {
				t.Errorf("重新解析结果不一致: %q != %q", reparsed.Caption, first.Caption)
			}
			if reparsed.VisitTime != "" || reparsed.QueueTime != "" || reparsed.ReservationNote != "" {
				t.Errorf("剥离后的正文不应再产生元数据: %+v", reparsed)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	p := NewDefault()
	blocks := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		blocks = append(blocks, block(fmt.Sprintf("r%d", i), stars(i%6), fmt.Sprintf("caption %d", i)))
	}
	markup := page(blocks...)

	tests := []struct {
		name       string
		start, end int
		wantIDs    []string
	}{
		{"中间区间", 3, 6, []string{"r3", "r4", "r5"}},
		{"超出末尾", 8, 20, []string{"r8", "r9"}},
		{"起点越界", 10, 20, nil},
		{"空区间", 5, 5, nil},
		{"负起点", -2, 1, []string{"r0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.ParseRange(markup, tt.start, tt.end)
			if err != nil {
				t.Fatalf("ParseRange() error = %v", err)
			}
			if len(result.Records) != len(tt.wantIDs) {
				t.Fatalf("记录数 = %d, want %d", len(result.Records), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if result.Records[i].ReviewID != id {
					t.Errorf("第%d条 = %s, want %s", i, result.Records[i].ReviewID, id)
				}
			}
		})
	}
}

func TestParseRangeIsolatesPanics(t *testing.T) {
	p := NewDefault()
	p.extract = func(index int, block *goquery.Selection) models.ReviewRecord {
		if index == 4 {
			panic("字段抽取失败")
		}
		return p.ParseOne(block)
	}

	blocks := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		blocks = append(blocks, block(fmt.Sprintf("r%d", i), stars(3), "ok"))
	}

	result, err := p.ParseRange(page(blocks...), 0, 10)
	if err != nil {
		t.Fatalf("ParseRange() error = %v", err)
	}
	if len(result.Records) != 9 {
		t.Errorf("成功记录数 = %d, want 9", len(result.Records))
	}
	if len(result.Failures) != 1 || result.Failures[0].Index != 4 {
		t.Fatalf("失败记录 = %+v, want 索引4", result.Failures)
	}
	if models.KindOf(result.Failures[0].Err) != models.KindRecordProcessing {
		t.Errorf("失败分类 = %q", models.KindOf(result.Failures[0].Err))
	}
	if result.Processed() != 10 {
		t.Errorf("Processed() = %d, want 10", result.Processed())
	}
	if result.Records[4].ReviewID != "r5" {
		t.Errorf("失败之后应继续处理后续记录, 第5条 = %s", result.Records[4].ReviewID)
	}
}

func TestCountItems(t *testing.T) {
	p := NewDefault()
	n, err := p.CountItems(page(block("a", "", ""), block("b", "", ""), `<div class="other"></div>`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountItems() = %d, want 2", n)
	}
}

func TestText(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="x">  a <b> b  c </b><script>var x;</script><!-- c --><i>d</i>  </div>`))
	if got := Text(doc.Find("#x")); got != "a b c d" {
		t.Errorf("Text() = %q, want %q", got, "a b c d")
	}
}
