// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertSections 断言答案按顺序包含给定能力的槽位，available 标记可用性
func AssertSections(t *testing.T, answer types.FinalAnswer, want []types.IntentLabel, available map[types.IntentLabel]bool) {
	t.Helper()

	if len(answer.Sections) != len(want) {
		t.Errorf("section count mismatch: expected %d, got %d", len(want), len(answer.Sections))
		return
	}
	for i, l := range want {
		got := answer.Sections[i]
		if got.Capability != l {
			t.Errorf("section[%d] capability mismatch: expected %q, got %q", i, l, got.Capability)
		}
		if exp, ok := available[l]; ok && got.Available != exp {
			t.Errorf("section[%d] (%s) availability mismatch: expected %v, got %v", i, l, exp, got.Available)
		}
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !waitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertEventuallyEqual 断言值最终相等
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var lastValue any

	for time.Now().Before(deadline) {
		lastValue = getter()
		if reflect.DeepEqual(expected, lastValue) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("value did not become %v within %v, last value: %v", expected, timeout, lastValue)
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// waitFor 等待条件满足或超时
func waitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// AssertNoReceive 断言在给定时间内通道没有收到值
func AssertNoReceive[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Errorf("unexpected value received: %v", v)
	case <-time.After(wait):
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
