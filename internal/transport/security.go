package transport

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/palemoky/werewolf/internal/logger"
)

// RateLimiter 按 IP 限制新连接的速率，超限后封禁一段时间
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*ipRate
	limit       rate.Limit
	burst       int
	banDuration time.Duration
	now         func() time.Time
}

type ipRate struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	bannedUntil time.Time
}

// NewRateLimiter 每秒允许 perSecond 次，突发 burst 次
func NewRateLimiter(perSecond float64, burst int, banDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:     make(map[string]*ipRate),
		limit:       rate.Limit(perSecond),
		burst:       burst,
		banDuration: banDuration,
		now:         time.Now,
	}
}

// Allow 检查是否允许该 IP 建立连接
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &ipRate{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	if now.Before(c.bannedUntil) {
		return false
	}
	if !c.limiter.AllowN(now, 1) {
		c.bannedUntil = now.Add(rl.banDuration)
		logger.LogWarn("⚠️ IP %s 因请求过于频繁被暂时封禁 %v", ip, rl.banDuration)
		return false
	}
	return true
}

// IsBanned 检查 IP 是否被封禁
func (rl *RateLimiter) IsBanned(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	return ok && rl.now().Before(c.bannedUntil)
}

// Prune 删除空闲超过 idle 且未被封禁的记录
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > idle && !now.Before(c.bannedUntil) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// ChatLimiter 按用户限制聊天频率
type ChatLimiter interface {
	AllowChat(userID string) (allowed bool, reason string)
}

// UserChatLimiter 每个用户一个令牌桶
type UserChatLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewChatLimiter 每秒 perSecond 条，突发 burst 条
func NewChatLimiter(perSecond float64, burst int) *UserChatLimiter {
	return &UserChatLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// AllowChat 实现 ChatLimiter
func (l *UserChatLimiter) AllowChat(userID string) (bool, string) {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()

	if !lim.Allow() {
		return false, "发言过于频繁，请稍后再试"
	}
	return true, ""
}

// Forget 用户断开后释放令牌桶
func (l *UserChatLimiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, userID)
}

// OriginChecker 来源验证器
type OriginChecker struct {
	allowed  map[string]bool
	allowAll bool
}

// NewOriginChecker 空列表或包含 "*" 时允许所有来源
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]bool)}
	if len(origins) == 0 {
		oc.allowAll = true
	}
	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			return oc
		}
		oc.allowed[strings.ToLower(origin)] = true
	}
	return oc
}

// Check 检查来源是否允许
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// 本地客户端不带 Origin
		return true
	}
	return oc.allowed[strings.ToLower(origin)]
}

// GetClientIP 获取客户端真实 IP
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
