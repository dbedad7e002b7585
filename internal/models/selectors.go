package models

// Selectors 评论页面的标记定位器
// 默认值对应 Google Maps 评论列表 (id-ID 界面)
type Selectors struct {
	Item          string `mapstructure:"item"`           // 评论块
	Name          string `mapstructure:"name"`           // 评论者名称
	Profile       string `mapstructure:"profile"`        // 个人主页链接
	Photo         string `mapstructure:"photo"`          // 头像容器 (style中的background-image)
	Rating        string `mapstructure:"rating"`         // 评分容器
	Star          string `mapstructure:"star"`           // 星形图标
	StarFill      string `mapstructure:"star_fill"`      // 实心星的fill颜色
	Timestamp     string `mapstructure:"timestamp"`      // 相对时间
	Caption       string `mapstructure:"caption"`        // 正文容器
	Special       string `mapstructure:"special"`        // 正文中的元数据段
	LabelStyle    string `mapstructure:"label_style"`    // 元数据标签的加粗样式
	ExpandControl string `mapstructure:"expand_control"` // "Selengkapnya" 展开按钮
}

// DefaultSelectors 默认定位器
func DefaultSelectors() Selectors {
	return Selectors{
		Item:          "div.bwb7ce",
		Name:          "div.Vpc5Fe",
		Profile:       "a.yC3ZMb",
		Photo:         "div.wSokxc",
		Rating:        "div.dHX2k",
		Star:          "svg.ePMStd",
		StarFill:      "#fabb05",
		Timestamp:     "span.y3Ibjb",
		Caption:       "div.OA1nbd",
		Special:       "div.zMjRQd",
		LabelStyle:    "font-weight: 500;",
		ExpandControl: `//a[contains(@class, "MtCSLb") and contains(text(), "Selengkapnya")]`,
	}
}

// MetadataLabels 元数据段中的标签关键字 (小写, 子串匹配)
type MetadataLabels struct {
	VisitTime   []string `mapstructure:"visit_time"`
	QueueTime   []string `mapstructure:"queue_time"`
	Reservation []string `mapstructure:"reservation"`
}

// DefaultMetadataLabels 默认标签关键字
func DefaultMetadataLabels() MetadataLabels {
	return MetadataLabels{
		VisitTime:   []string{"waktu kunjungan"},
		QueueTime:   []string{"waktu antrean"},
		Reservation: []string{"reservasi"},
	}
}
