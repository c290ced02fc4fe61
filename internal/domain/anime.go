package domain

// AnimeInfo 是 provider 返回（或缓存命中）的最小元数据。
//
// 约束：
// - TitleMain 必须非空；TitleAlt/Year 缺失时为零值
// - 这里不保存 provider 原始响应，缓存只落这几个字段
type AnimeInfo struct {
	ID        int
	TitleMain string
	TitleAlt  string
	Year      int
}
