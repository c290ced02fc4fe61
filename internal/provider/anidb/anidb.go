package anidb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/anidir/internal/domain"
	"github.com/John-Robertt/anidir/internal/infra/ratelimit"
	providerx "github.com/John-Robertt/anidir/internal/provider"
)

const (
	DefaultBaseURL = "http://api.anidb.net:9001/httpapi"
	protoVersion   = "1"

	// maxBody 限制单个响应的读取量；AniDB 的 anime 文档通常在数百 KB 以内。
	maxBody = 8 << 20
)

// Client 实现 AniDB HTTP API 的 anime 查询。
//
// 约束：
// - ClientName/ClientVersion 必须是在 AniDB 注册过的客户端；缺失时不发任何请求
// - Limiter 在每次请求前等待（AniDB 要求至少 2s 间隔，过快会被封禁）
// - 不做重试（由 provider.WithRetry 统一实现）
type Client struct {
	BaseURL       string
	ClientName    string
	ClientVersion string

	HTTP    *http.Client
	Limiter *ratelimit.Limiter
}

func (*Client) Name() string { return "anidb" }

func (c *Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return u
}

// RequestURL 返回查询指定 id 的完整 URL。
func (c *Client) RequestURL(id int) string {
	q := url.Values{}
	q.Set("request", "anime")
	q.Set("client", c.ClientName)
	q.Set("clientver", c.ClientVersion)
	q.Set("protover", protoVersion)
	q.Set("aid", strconv.Itoa(id))
	return c.baseURL() + "?" + q.Encode()
}

func (c *Client) Fetch(ctx context.Context, id int) (domain.AnimeInfo, error) {
	if strings.TrimSpace(c.ClientName) == "" || strings.TrimSpace(c.ClientVersion) == "" {
		return domain.AnimeInfo{}, c.fail(providerx.KindNotConfigured, id,
			errors.New("未配置 AniDB 客户端：请设置 ANIDB_CLIENT 与 ANIDB_CLIENT_VERSION"))
	}
	if c.HTTP == nil {
		return domain.AnimeInfo{}, c.fail(providerx.KindNotConfigured, id, errors.New("http client 不能为空"))
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return domain.AnimeInfo{}, providerx.Wrap(c.Name(), id, err)
		}
	}

	body, err := c.get(ctx, c.RequestURL(id))
	if err != nil {
		var se *providerx.HTTPStatusError
		if errors.As(err, &se) {
			return domain.AnimeInfo{}, c.fail(se.Kind(), id, err)
		}
		return domain.AnimeInfo{}, providerx.Wrap(c.Name(), id, err)
	}

	info, err := Parse(id, body)
	if err != nil {
		return domain.AnimeInfo{}, providerx.Wrap(c.Name(), id, err)
	}
	return info, nil
}

func (c *Client) fail(kind providerx.Kind, id int, err error) error {
	return &providerx.Error{Provider: c.Name(), Kind: kind, ID: id, Err: err}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After")}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	return gunzipIfNeeded(b)
}

// gunzipIfNeeded 处理未声明 Content-Encoding 的 gzip 响应。
func gunzipIfNeeded(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxBody))
}

type title struct {
	typ  string
	lang string
	text string
}

// Parse 把 AniDB anime XML 解析为 AnimeInfo。纯函数：相同输入 => 相同输出。
//
// 错误均为 *provider.Error（Provider/ID 已填写）。
func Parse(id int, body []byte) (domain.AnimeInfo, error) {
	fail := func(kind providerx.Kind, err error) (domain.AnimeInfo, error) {
		return domain.AnimeInfo{}, &providerx.Error{Provider: "anidb", Kind: kind, ID: id, Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fail(providerx.KindMalformed, errors.New("响应为空"))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fail(providerx.KindMalformed, err)
	}

	if e := doc.Find("body > error").First(); e.Length() > 0 {
		msg := normSpace(e.Text())
		return fail(errorKind(msg), &providerx.ServiceError{Message: msg})
	}

	anime := doc.Find("body > anime").First()
	if anime.Length() == 0 {
		return fail(providerx.KindMalformed, errors.New("响应中没有 <anime> 元素"))
	}

	var titles []title
	anime.ChildrenFiltered("titles").ChildrenFiltered("title").Each(func(_ int, s *goquery.Selection) {
		t := title{
			typ:  strings.ToLower(strings.TrimSpace(s.AttrOr("type", ""))),
			lang: strings.ToLower(strings.TrimSpace(s.AttrOr("xml:lang", ""))),
			text: normSpace(s.Text()),
		}
		if t.text != "" {
			titles = append(titles, t)
		}
	})

	primary := pickMain(titles)
	if primary.text == "" {
		return fail(providerx.KindMalformed, fmt.Errorf("anime %d 缺少主标题", id))
	}

	return domain.AnimeInfo{
		ID:        id,
		TitleMain: primary.text,
		TitleAlt:  pickAlt(titles, primary),
		Year:      yearFromDate(anime.ChildrenFiltered("startdate").First().Text()),
	}, nil
}

// pickMain：type=main；缺失时回退到 official x-jat（罗马音）。
func pickMain(titles []title) title {
	for _, t := range titles {
		if t.typ == "main" {
			return t
		}
	}
	for _, t := range titles {
		if t.typ == "official" && t.lang == "x-jat" {
			return t
		}
	}
	return title{}
}

// pickAlt 的优先级：official/en，其它语言的 official，synonym/en。
// 与主标题相同的候选会被跳过。
func pickAlt(titles []title, primary title) string {
	rules := []func(title) bool{
		func(t title) bool { return t.typ == "official" && t.lang == "en" },
		func(t title) bool { return t.typ == "official" && t.lang != primary.lang },
		func(t title) bool { return t.typ == "synonym" && t.lang == "en" },
	}
	for _, ok := range rules {
		for _, t := range titles {
			if ok(t) && t.text != primary.text {
				return t.text
			}
		}
	}
	return ""
}

func errorKind(msg string) providerx.Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "banned"):
		return providerx.KindBanned
	case strings.Contains(m, "anime not found"), strings.Contains(m, "no such anime"):
		return providerx.KindNotFound
	case strings.Contains(m, "client"):
		return providerx.KindNotConfigured
	default:
		return providerx.KindServer
	}
}

func yearFromDate(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y <= 0 {
		return 0
	}
	return y
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
