package gateway

import (
	"sort"

	"github.com/danmuck/articgate/internal/rpc"
)

// Wire method names.
const (
	MethodGetTitleID        = "Process_GetTitleID"
	MethodGetProductInfo    = "Process_GetProductInfo"
	MethodGetExheader       = "Process_GetExheader"
	MethodReadCode          = "Process_ReadCode"
	MethodReadIcon          = "Process_ReadIcon"
	MethodReadBanner        = "Process_ReadBanner"
	MethodReadLogo          = "Process_ReadLogo"
	MethodOpenFileDirectly  = "FSUSER_OpenFileDirectly"
	MethodOpenArchive       = "FSUSER_OpenArchive"
	MethodCloseArchive      = "FSUSER_CloseArchive"
	MethodOpenFile          = "FSUSER_OpenFile"
	MethodOpenDirectory     = "FSUSER_OpenDirectory"
	MethodFileClose         = "FSFILE_Close"
	MethodFileGetAttributes = "FSFILE_GetAttributes"
	MethodFileGetSize       = "FSFILE_GetSize"
	MethodFileRead          = "FSFILE_Read"
	MethodDirRead           = "FSDIR_Read"
	MethodDirClose          = "FSDIR_Close"
	MethodIsInitialSetup    = "System_IsAzaharInitialSetup"
	MethodGetSystemFile     = "System_GetSystemFile"
	MethodGetNIM            = "System_GetNIM"
)

func (s *Session) methods() []rpc.Method {
	return []rpc.Method{
		{Name: MethodGetTitleID, Handler: rpc.HandlerFunc(s.getTitleID)},
		{Name: MethodGetProductInfo, Handler: rpc.HandlerFunc(s.getProductInfo)},
		{Name: MethodGetExheader, Handler: rpc.HandlerFunc(s.getExheader)},
		{Name: MethodReadCode, Handler: rpc.HandlerFunc(s.readCode)},
		{Name: MethodReadIcon, Handler: exefsReader(s, "icon")},
		{Name: MethodReadBanner, Handler: exefsReader(s, "banner")},
		{Name: MethodReadLogo, Handler: exefsReader(s, "logo")},
		{Name: MethodOpenFileDirectly, Handler: rpc.HandlerFunc(s.openFileDirectly)},
		{Name: MethodOpenArchive, Handler: rpc.HandlerFunc(s.openArchive)},
		{Name: MethodCloseArchive, Handler: rpc.HandlerFunc(s.closeArchive)},
		{Name: MethodOpenFile, Handler: rpc.HandlerFunc(s.openFile)},
		{Name: MethodOpenDirectory, Handler: rpc.HandlerFunc(s.openDirectory)},
		{Name: MethodFileClose, Handler: rpc.HandlerFunc(s.fileClose)},
		{Name: MethodFileGetAttributes, Handler: rpc.HandlerFunc(s.fileGetAttributes)},
		{Name: MethodFileGetSize, Handler: rpc.HandlerFunc(s.fileGetSize)},
		{Name: MethodFileRead, Handler: rpc.HandlerFunc(s.fileRead)},
		{Name: MethodDirRead, Handler: rpc.HandlerFunc(s.dirRead)},
		{Name: MethodDirClose, Handler: rpc.HandlerFunc(s.dirClose)},
		{Name: MethodIsInitialSetup, Handler: rpc.HandlerFunc(s.isInitialSetup)},
		{Name: MethodGetSystemFile, Handler: rpc.HandlerFunc(s.getSystemFile)},
		{Name: MethodGetNIM, Handler: rpc.HandlerFunc(s.getNIM)},
	}
}

// Catalogue returns every method name a session serves, sorted.
func Catalogue() []string {
	var s Session
	methods := s.methods()
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
