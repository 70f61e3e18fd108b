package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// request/response collaborator used when the realtime path reports failure.
// it returns the same item shapes as the realtime path so the collection
// merge can unify both sources by id.

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type Api struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewApi(apiUrl string) *Api {
	return NewApiWithContext(context.Background(), apiUrl)
}

func NewApiWithContext(ctx context.Context, apiUrl string) *Api {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &Api{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *Api) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

type ChatMessagesResult struct {
	Content    []*ChatMessageItem `json:"content"`
	TotalPages int                `json:"totalPages"`
	Last       bool               `json:"last"`
}

func (self *Api) GetRecentCommunityMessages(communityId string) ([]*ChatMessageItem, error) {
	messages := []*ChatMessageItem{}
	return request(
		self.ctx,
		"GET",
		fmt.Sprintf("%s/api/chat/community/%s/recent", self.apiUrl, communityId),
		nil,
		self.byJwt,
		messages,
		NewNoopApiCallback[[]*ChatMessageItem](),
	)
}

func (self *Api) GetCommunityMessages(communityId string, page int, size int) (*ChatMessagesResult, error) {
	return request(
		self.ctx,
		"GET",
		fmt.Sprintf("%s/api/chat/community/%s?page=%d&size=%d", self.apiUrl, communityId, page, size),
		nil,
		self.byJwt,
		&ChatMessagesResult{},
		NewNoopApiCallback[*ChatMessagesResult](),
	)
}

type SendCommunityMessageCallback apiCallback[*ChatMessageItem]

func (self *Api) SendCommunityMessage(communityId string, message *ChatMessageItem, callback SendCommunityMessageCallback) {
	go request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/api/chat/community/%s", self.apiUrl, communityId),
		message,
		self.byJwt,
		&ChatMessageItem{},
		callback,
	)
}

func (self *Api) SendCommunityMessageSync(communityId string, message *ChatMessageItem) (*ChatMessageItem, error) {
	return request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/api/chat/community/%s", self.apiUrl, communityId),
		message,
		self.byJwt,
		&ChatMessageItem{},
		NewNoopApiCallback[*ChatMessageItem](),
	)
}

type NotificationsResult struct {
	Content    []*NotificationItem `json:"content"`
	TotalPages int                 `json:"totalPages"`
	Last       bool                `json:"last"`
}

func (self *Api) GetNotifications(page int, size int) (*NotificationsResult, error) {
	return request(
		self.ctx,
		"GET",
		fmt.Sprintf("%s/api/notifications?page=%d&size=%d", self.apiUrl, page, size),
		nil,
		self.byJwt,
		&NotificationsResult{},
		NewNoopApiCallback[*NotificationsResult](),
	)
}

func (self *Api) GetUnreadNotifications() ([]*NotificationItem, error) {
	notifications := []*NotificationItem{}
	return request(
		self.ctx,
		"GET",
		fmt.Sprintf("%s/api/notifications/unread", self.apiUrl),
		nil,
		self.byJwt,
		notifications,
		NewNoopApiCallback[[]*NotificationItem](),
	)
}

type MarkNotificationReadCallback apiCallback[*NotificationItem]

func (self *Api) MarkNotificationRead(notificationId string, callback MarkNotificationReadCallback) {
	go request(
		self.ctx,
		"PUT",
		fmt.Sprintf("%s/api/notifications/%s/read", self.apiUrl, notificationId),
		nil,
		self.byJwt,
		&NotificationItem{},
		callback,
	)
}

func (self *Api) MarkNotificationReadSync(notificationId string) (*NotificationItem, error) {
	return request(
		self.ctx,
		"PUT",
		fmt.Sprintf("%s/api/notifications/%s/read", self.apiUrl, notificationId),
		nil,
		self.byJwt,
		&NotificationItem{},
		NewNoopApiCallback[*NotificationItem](),
	)
}

func (self *Api) MarkAllNotificationsRead() error {
	_, err := request(
		self.ctx,
		"PUT",
		fmt.Sprintf("%s/api/notifications/read-all", self.apiUrl),
		nil,
		self.byJwt,
		&struct{}{},
		NewNoopApiCallback[*struct{}](),
	)
	return err
}

type CommentsResult struct {
	Content    []*CommentNode `json:"content"`
	TotalPages int            `json:"totalPages"`
	Last       bool           `json:"last"`
}

type commentArgs struct {
	Content string `json:"content"`
}

func (self *Api) GetComments(postId string, page int, size int) (*CommentsResult, error) {
	return request(
		self.ctx,
		"GET",
		fmt.Sprintf("%s/api/comments/%s?page=%d&size=%d", self.apiUrl, postId, page, size),
		nil,
		self.byJwt,
		&CommentsResult{},
		NewNoopApiCallback[*CommentsResult](),
	)
}

func (self *Api) AddComment(postId string, content string) (*CommentNode, error) {
	return request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/api/comments/%s", self.apiUrl, postId),
		&commentArgs{Content: content},
		self.byJwt,
		&CommentNode{},
		NewNoopApiCallback[*CommentNode](),
	)
}

func (self *Api) ReplyToComment(postId string, parentCommentId string, content string) (*CommentNode, error) {
	return request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/api/comments/%s/reply/%s", self.apiUrl, postId, parentCommentId),
		&commentArgs{Content: content},
		self.byJwt,
		&CommentNode{},
		NewNoopApiCallback[*CommentNode](),
	)
}

func (self *Api) EditComment(commentId string, content string) (*CommentNode, error) {
	return request(
		self.ctx,
		"PUT",
		fmt.Sprintf("%s/api/comments/%s", self.apiUrl, commentId),
		&commentArgs{Content: content},
		self.byJwt,
		&CommentNode{},
		NewNoopApiCallback[*CommentNode](),
	)
}

func (self *Api) DeleteComment(commentId string) error {
	_, err := request(
		self.ctx,
		"DELETE",
		fmt.Sprintf("%s/api/comments/%s", self.apiUrl, commentId),
		nil,
		self.byJwt,
		&struct{}{},
		NewNoopApiCallback[*struct{}](),
	)
	return err
}

func (self *Api) Close() {
	self.cancel()
}

func request[R any](ctx context.Context, method string, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBody io.Reader
	if args != nil {
		requestBodyBytes, err := json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
		requestBody = bytes.NewReader(requestBodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		if errorMessage == "" {
			errorMessage = r.Status
		}
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	if len(responseBodyBytes) != 0 {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}
