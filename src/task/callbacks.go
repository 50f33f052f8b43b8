package task

import "fmt"

// FuncCallback 以函数形式实现TaskCallback，调用方用闭包携带任务上下文
// 回调在工作协程内同步执行，panic会被捕获而不会拖垮工作协程
type FuncCallback struct {
	onComplete func(result interface{})
	onError    func(err error)
}

func NewFuncCallback(onComplete func(result interface{}), onError func(err error)) *FuncCallback {
	return &FuncCallback{
		onComplete: onComplete,
		onError:    onError,
	}
}

func (cb *FuncCallback) OnComplete(result interface{}) {
	if cb.onComplete == nil {
		return
	}
	defer recoverCallbackPanic("完成")
	cb.onComplete(result)
}

func (cb *FuncCallback) OnError(err error) {
	if cb.onError == nil {
		return
	}
	defer recoverCallbackPanic("错误")
	cb.onError(err)
}

func recoverCallbackPanic(kind string) {
	if r := recover(); r != nil {
		fmt.Printf("任务%s回调panic已恢复: %v\n", kind, r)
	}
}
