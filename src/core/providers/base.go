package providers

// Provider 所有提供者的基础接口
type Provider interface {
	Initialize() error
	Cleanup() error
}
