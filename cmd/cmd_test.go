/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

func TestNormalizeArgs(t *testing.T) {
	in := []string{"link", "-place=text@4000", "-hex", "-o", "x.hex", "--relocatable", "-relocatable", "a.o", "-"}
	want := []string{"link", "--place=text@4000", "--hex", "-o", "x.hex", "--relocatable", "--relocatable", "a.o", "-"}
	assert.Equal(t, want, normalizeArgs(in))
}

func TestPlacements(t *testing.T) {
	p := placements{}
	require.NoError(t, p.Set("text@4000"))
	require.NoError(t, p.Set("data@0x0000F000"))
	assert.Equal(t, placements{"text": 0x4000, "data": 0xF000}, p)
	assert.Equal(t, "data@0xF000,text@0x4000", p.String())

	assert.Error(t, p.Set("text@5000"))
	assert.Error(t, p.Set("bss"))
	assert.Error(t, p.Set("@100"))
	assert.Error(t, p.Set("bss@xyz"))
	assert.Error(t, p.Set("bss@100000000"))
}

// Runs asm, link and dump end to end through the command tree.
func TestAsmLinkDump(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte(".section text\nstart: jmp start\n.end\n"), 0o644))

	rootCmd.SetArgs([]string{"asm", "--listing", src})
	require.NoError(t, rootCmd.Execute())
	objPath := filepath.Join(dir, "prog.o")
	assert.FileExists(t, objPath)
	assert.FileExists(t, objPath+".txt")

	out := filepath.Join(dir, "prog.hex")
	rootCmd.SetArgs(normalizeArgs([]string{"link", "-place=text@100", "-hex", "--hexdump", "-o", out, objPath}))
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, out+".hexdump")

	f, err := obj.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(obj.TypeExec), f.Type)
	_, text := f.Lookup("text")
	require.NotNil(t, text)
	assert.Equal(t, uint32(0x100), text.Addr)
}

func TestLinkOutputKind(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.hex")
	missing := filepath.Join(dir, "missing.o")

	rootCmd.SetArgs([]string{"link", "--hex=false", "--relocatable=false", "-o", out, missing})
	require.NoError(t, rootCmd.Execute())
	assert.NoFileExists(t, out)

	rootCmd.SetArgs([]string{"link", "--hex", "--relocatable", "-o", out, missing})
	assert.Error(t, rootCmd.Execute())
	assert.NoFileExists(t, out)
	linkHex, linkRelocatable = false, false
}
