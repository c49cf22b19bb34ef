package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var ErrClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// Change is delivered to handlers when a tracked file is created, written
// or removed.
type Change struct {
	Path string
	Type AssetType
	Op   fsnotify.Op
}

// Handler runs on the watcher goroutine and must not block.
type Handler func(Change)

// AssetManager indexes the asset directory, loads files through per-type
// loaders and reports on-disk changes for hot reload.
type AssetManager struct {
	assets    map[string]AssetInfo
	files     map[string]struct{}
	loaders   map[AssetType]Loader
	handlers  []Handler
	shaderDir string

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		files:    make(map[string]struct{}),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	am.registerLoader(AssetTypeShader, &loaders.BinaryLoader{})
	am.registerLoader(AssetTypeFont, &loaders.BitmapFontLoader{})
	am.registerLoader(AssetTypeImage, &loaders.ImageLoader{})
	go am.start()
	return am, nil
}

// Initialize indexes and watches assetsDir recursively. Compiled shaders
// are looked up in shaderDir.
func (am *AssetManager) Initialize(assetsDir, shaderDir string) error {
	am.mutex.Lock()
	am.shaderDir = filepath.Clean(shaderDir)
	am.mutex.Unlock()

	if _, err := os.Stat(assetsDir); err != nil {
		core.LogWarn("asset directory %s is not available: %s", assetsDir, err)
		return nil
	}
	return am.addRecursive(assetsDir)
}

// WatchFile reports changes of a single file that lives outside the asset
// tree, such as the settings file.
func (am *AssetManager) WatchFile(path string) error {
	if am.closed() {
		return ErrClosed
	}
	path = filepath.Clean(path)

	am.mutex.Lock()
	am.files[path] = struct{}{}
	am.mutex.Unlock()

	// editors replace files on save, so the directory is watched
	return am.fsnotify.Add(filepath.Dir(path))
}

// OnChange registers h for every change of an indexed or watched file.
func (am *AssetManager) OnChange(h Handler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.handlers = append(am.handlers, h)
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads path with the loader registered for its extension.
func (am *AssetManager) LoadAsset(path string) (interface{}, error) {
	assetType := determineAssetType(path)

	am.mutex.Lock()
	loader, exists := am.loaders[assetType]
	if exists {
		am.assets[filepath.Clean(path)] = AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}
	}
	am.mutex.Unlock()

	if !exists {
		return nil, fmt.Errorf("no loader registered for %s (%s)", path, assetType)
	}
	return loader.Load(path)
}

// Load reads the SPIR-V of a shader stage from the shader directory.
func (am *AssetManager) Load(stage gpu.ShaderStage) ([]byte, error) {
	am.mutex.RLock()
	dir := am.shaderDir
	am.mutex.RUnlock()

	data, err := am.LoadAsset(filepath.Join(dir, stage.FileName()))
	if err != nil {
		return nil, err
	}
	return data.([]byte), nil
}

func (am *AssetManager) LoadFont(path string) (*loaders.BitmapFont, error) {
	data, err := am.LoadAsset(path)
	if err != nil {
		return nil, err
	}
	font, ok := data.(*loaders.BitmapFont)
	if !ok {
		return nil, fmt.Errorf("%s is not a bitmap font", path)
	}
	return font, nil
}

// Lookup returns the index entry of path.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// Close stops the watcher goroutine. It is safe to call more than once.
func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) closed() bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return am.isClosed
}

func (am *AssetManager) addRecursive(name string) error {
	if am.closed() {
		return ErrClosed
	}
	return am.watchRecursive(name)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	name := filepath.Clean(e.Name)

	s, err := os.Stat(name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := am.watchRecursive(name); err != nil {
				core.LogWarn("asset watcher: watch %s: %s", name, err)
			}
		}
		return
	}

	am.mutex.Lock()
	_, explicit := am.files[name]
	assetType := determineAssetType(name)
	if !explicit && assetType == AssetTypeNone {
		am.mutex.Unlock()
		return
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		am.assets[name] = AssetInfo{Path: name, Type: assetType, LastLoaded: time.Now()}
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(am.assets, name)
	default:
		am.mutex.Unlock()
		return
	}
	handlers := append([]Handler(nil), am.handlers...)
	am.mutex.Unlock()

	core.LogDebug("asset %s changed (%s)", name, e.Op)
	for _, h := range handlers {
		h(Change{Path: name, Type: assetType, Op: e.Op})
	}
}

// watchRecursive adds all directories under path to the watch list and
// indexes the files it finds.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		if t := determineAssetType(walkPath); t != AssetTypeNone {
			am.mutex.Lock()
			am.assets[filepath.Clean(walkPath)] = AssetInfo{Path: walkPath, Type: t}
			am.mutex.Unlock()
		}
		return nil
	})
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".spv":
		return AssetTypeShader
	case ".fnt":
		return AssetTypeFont
	case ".png", ".bmp":
		return AssetTypeImage
	case ".toml":
		return AssetTypeSettings
	default:
		return AssetTypeNone
	}
}
