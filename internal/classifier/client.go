// Package classifier 封装外部风险分类器的HTTP调用
// 分类器不可达或出错时返回"无意见"（nil），由规则评分单独决策
package classifier

import (
	"context"
	"fmt"
	"time"

	"neovance-monitor/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// prediction 分类器响应
type prediction struct {
	Probability    float64 `json:"probability"`
	FeatureVersion string  `json:"feature_version"`
	ModelVersion   string  `json:"model_version"`
}

// Client 外部分类器客户端
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewClient 创建分类器客户端
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Predict 提交特征快照，返回败血症概率 [0, 1]
// 任何失败（超时、非200、越界概率）都降级为无意见（nil, nil），
// 错误记入日志后不再上抛，调用方据此回退到规则评分
func (c *Client) Predict(ctx context.Context, snapshot models.FeatureSnapshot) (*float64, error) {
	var result prediction
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(snapshot).
		SetResult(&result).
		Post(c.url)

	if err != nil {
		c.logger.Warn("classifier call failed, falling back to rule-based category",
			zap.Error(err),
			zap.String("url", c.url),
		)
		return nil, nil
	}

	if resp.StatusCode() != 200 {
		c.logger.Warn("classifier returned non-200 status, falling back to rule-based category",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("url", c.url),
		)
		return nil, nil
	}

	if result.Probability < 0 || result.Probability > 1 {
		c.logger.Warn("classifier returned out-of-range probability, ignoring",
			zap.Float64("probability", result.Probability),
		)
		return nil, nil
	}

	if result.FeatureVersion != "" && result.FeatureVersion != snapshot.FeatureVersion {
		// 特征版本不匹配说明模型是用旧特征训练的，意见不可采信
		c.logger.Warn("classifier feature version mismatch, ignoring",
			zap.String("expected", snapshot.FeatureVersion),
			zap.String("got", result.FeatureVersion),
		)
		return nil, nil
	}

	c.logger.Debug("classifier prediction received",
		zap.Float64("probability", result.Probability),
		zap.String("model_version", result.ModelVersion),
	)

	p := result.Probability
	return &p, nil
}

// Healthy 探测分类器可用性（启动时记录日志用，失败不致命）
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.url)
	if err != nil {
		return fmt.Errorf("classifier unreachable: %w", err)
	}
	// POST-only端点对GET返回405也说明服务存活
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("classifier unhealthy: status %d", resp.StatusCode())
	}
	return nil
}
