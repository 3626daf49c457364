//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newTransformer(assets AssetSource) (Transformer, error) {
	return stdTransformer{assets: assets}, nil
}
