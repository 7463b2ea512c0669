// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// ErrNotFound 表示引用的容器不存在，或调用者不是其成员/拥有者。
// 两种情况统一返回 not-found，避免向非拥有者泄露容器是否存在。
var ErrNotFound = errors.New("container not found")
