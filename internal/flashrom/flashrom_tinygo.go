//go:build tinygo

package flashrom

/*
#include <stdint.h>
#include <stddef.h>

// ROM table code: a 2-character ASCII tag packed into a 16-bit code,
// matching the RP2040 bootrom's function table.
#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')
#define ROM_FUNC_FLASH_ENTER_CMD_XIP    ROM_TABLE_CODE('C', 'X')

#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_TABLE_LOOKUP_OFFSET 0x18

#define FLASH_SECTOR_ERASE_CMD 0x20

typedef void (*rom_void_fn)(void);
typedef void (*rom_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*rom_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void *(*rom_table_lookup_fn)(uint16_t *table, uint32_t code);

static rom_void_fn rom_connect_internal_flash;
static rom_void_fn rom_flash_exit_xip;
static rom_erase_fn rom_flash_range_erase;
static rom_program_fn rom_flash_range_program;
static rom_void_fn rom_flash_flush_cache;
static rom_void_fn rom_flash_enter_cmd_xip;
static int rom_functions_ready = 0;

static void *rom_func_lookup_inline(uint32_t code) {
    uint16_t *table = (uint16_t *)(uintptr_t)(*(uint16_t *)BOOTROM_FUNC_TABLE_OFFSET);
    rom_table_lookup_fn lookup =
        (rom_table_lookup_fn)(uintptr_t)(*(uint16_t *)BOOTROM_TABLE_LOOKUP_OFFSET);
    return lookup(table, code);
}

static int flashrom_init(void) {
    rom_connect_internal_flash = (rom_void_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    rom_flash_exit_xip = (rom_void_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    rom_flash_range_erase = (rom_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    rom_flash_range_program = (rom_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    rom_flash_flush_cache = (rom_void_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    rom_flash_enter_cmd_xip = (rom_void_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_ENTER_CMD_XIP);

    rom_functions_ready = rom_connect_internal_flash && rom_flash_exit_xip &&
        rom_flash_range_erase && rom_flash_range_program &&
        rom_flash_flush_cache && rom_flash_enter_cmd_xip;
    return rom_functions_ready ? 0 : -1;
}

// flashrom_erase and flashrom_program must never themselves be paged in
// from flash mid-call, since step 2 (flash_exit_xip) removes flash from
// the address space until step 5 re-enters it. TinyGo has no RAM-section
// placement attribute equivalent to Rust's #[link_section = ".data"], so
// the entire disable-interrupts/operate/re-enable sequence is written as
// one inline C function, keeping it out of Go-compiled flash code and
// making it a single leaf call the compiler cannot interleave with flash
// accesses.
static void flashrom_erase(uint32_t offset, uint32_t size) {
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    rom_connect_internal_flash();
    rom_flash_exit_xip();
    rom_flash_range_erase(offset, size, 4096, FLASH_SECTOR_ERASE_CMD);
    rom_flash_flush_cache();
    rom_flash_enter_cmd_xip();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

static void flashrom_program(uint32_t offset, const uint8_t *data, uint32_t len) {
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    rom_connect_internal_flash();
    rom_flash_exit_xip();
    rom_flash_range_program(offset, data, len);
    rom_flash_flush_cache();
    rom_flash_enter_cmd_xip();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}
*/
import "C"

import (
	"unsafe"

	"adnt/crispyboot/internal/bootproto"
)

var initialized bool

// Init resolves every ROM function pointer this package needs. It must be
// called once, with XIP active, before any other function in this package.
func Init() error {
	if C.flashrom_init() != 0 {
		return ErrNotInitialized
	}
	initialized = true
	return nil
}

// Erase erases size bytes of flash starting at offset, rounded up by the
// caller to a sector multiple; the ROM erase call itself requires it.
func Erase(offset, size uint32) error {
	if !initialized {
		return ErrNotInitialized
	}
	C.flashrom_erase(C.uint32_t(offset), C.uint32_t(size))
	return nil
}

// Program writes data to flash starting at offset. Callers are
// responsible for page alignment and for erasing first.
func Program(offset uint32, data []byte) error {
	if !initialized {
		return ErrNotInitialized
	}
	if len(data) == 0 {
		return nil
	}
	C.flashrom_program(C.uint32_t(offset), (*C.uint8_t)(&data[0]), C.uint32_t(len(data)))
	return nil
}

// ReadBytes reads len(buf) bytes from flash at offset via direct, volatile
// memory-mapped reads — XIP makes flash readable as ordinary memory, the
// ROM sequence above is only needed to erase or program it.
func ReadBytes(offset uint32, buf []byte) error {
	addr := uintptr(bootproto.FlashBase + offset)
	for i := range buf {
		buf[i] = *(*byte)(unsafe.Pointer(addr + uintptr(i)))
	}
	return nil
}
