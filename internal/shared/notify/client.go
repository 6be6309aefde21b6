package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// Client — 消息网关基础客户端
// 提供token管理和通用HTTP请求，供Dispatcher发送工作流卡片消息
// =============================================================================

// Client 消息网关客户端
type Client struct {
	baseURL     string
	appID       string       // 应用ID
	appSecret   string       // 应用密钥
	tokenCache  string       // 缓存的访问令牌
	tokenExpire time.Time    // token过期时间
	mu          sync.RWMutex // 保护token缓存的读写锁
	httpClient  *http.Client // HTTP客户端
}

// NewClient 创建消息网关客户端实例
func NewClient(baseURL, appID, appSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		appID:     appID,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseResponse 网关统一响应结构
type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// getAccessToken 获取访问令牌
// 使用双重检查锁定模式缓存token，提前60秒刷新避免过期
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	// 先尝试从缓存获取（读锁）
	c.mu.RLock()
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		token := c.tokenCache
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	// 缓存失效，请求新token（写锁）
	c.mu.Lock()
	defer c.mu.Unlock()

	// 双重检查：其他goroutine可能已经刷新了token
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		return c.tokenCache, nil
	}

	reqBody := map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	}
	bodyBytes, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/api/v1/auth/app_access_token",
		bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("创建token请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求网关token失败: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code        int    `json:"code"`
		Msg         string `json:"msg"`
		AccessToken string `json:"access_token"`
		Expire      int    `json:"expire"` // 过期时间（秒）
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("解析token响应失败: %w", err)
	}

	if result.Code != 0 {
		return "", fmt.Errorf("网关token错误[%d]: %s", result.Code, result.Msg)
	}

	// 缓存token，提前60秒过期以保证安全
	c.tokenCache = result.AccessToken
	c.tokenExpire = time.Now().Add(time.Duration(result.Expire-60) * time.Second)

	return result.AccessToken, nil
}

// doRequest 执行网关API请求
// 自动获取token并添加Authorization头，处理网关统一错误码
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("获取访问令牌失败: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	// 先检查网关通用错误码
	var baseResp BaseResponse
	if err := json.Unmarshal(respBody, &baseResp); err != nil {
		return fmt.Errorf("解析响应基础结构失败: %w", err)
	}
	if baseResp.Code != 0 {
		return fmt.Errorf("网关API错误[%d]: %s (path=%s)", baseResp.Code, baseResp.Msg, path)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("解析响应体失败: %w", err)
		}
	}

	return nil
}

// sendMessageRequest 发送消息请求体
type sendMessageRequest struct {
	ReceiverID string  `json:"receiver_id"`
	IDType     string  `json:"id_type"` // user_id / role
	Message    Message `json:"message"`
}

// Message 工作流通知消息
type Message struct {
	Title   string            `json:"title"`
	Content string            `json:"content"`
	Link    string            `json:"link,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// SendToUser 向单个用户发送通知消息
func (c *Client) SendToUser(ctx context.Context, userID string, msg Message) error {
	return c.doRequest(ctx, "POST", "/api/v1/messages/send", sendMessageRequest{
		ReceiverID: userID,
		IDType:     "user_id",
		Message:    msg,
	}, nil)
}

// SendToRole 向持有指定角色的全部用户发送通知消息
// 接收人解析由网关完成，本服务只投递角色标识
func (c *Client) SendToRole(ctx context.Context, role string, msg Message) error {
	return c.doRequest(ctx, "POST", "/api/v1/messages/send", sendMessageRequest{
		ReceiverID: role,
		IDType:     "role",
		Message:    msg,
	}, nil)
}
